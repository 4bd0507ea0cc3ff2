package cache

import (
	"context"
	"time"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.SettlementReport, bool, error)
	Set(ctx context.Context, key string, value *domain.SettlementReport, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.SettlementReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.SettlementReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Delete(_ context.Context, _ string) error {
	return nil
}
