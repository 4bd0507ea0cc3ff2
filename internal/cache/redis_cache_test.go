package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
)

func TestRedisReportCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set LEDGER_TEST_REDIS_ADDR to run redis cache tests")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	defer client.Close()

	c := NewRedisReportCache(client)
	key := "test-" + time.Now().UTC().Format("150405.000000")
	report := &domain.SettlementReport{
		ShipmentID:         7,
		TotalSales:         decimal.RequireFromString("1250.50"),
		StoredFinalBalance: decimal.RequireFromString("-12.75"),
		Consistent:         true,
	}

	if err := c.Set(ctx, key, report, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected cached report, ok=%v err=%v", ok, err)
	}
	if got.ShipmentID != 7 || !got.TotalSales.Equal(report.TotalSales) || !got.StoredFinalBalance.Equal(report.StoredFinalBalance) {
		t.Fatalf("unexpected cached report: %+v", got)
	}

	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Fatalf("expected report to be evicted")
	}
}

func TestNoopReportCacheNeverHits(t *testing.T) {
	var c ReportCache = NoopReportCache{}
	if err := c.Set(context.Background(), "k", &domain.SettlementReport{ShipmentID: 1}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(context.Background(), "k"); ok || err != nil {
		t.Fatalf("noop cache should never hit, ok=%v err=%v", ok, err)
	}
}
