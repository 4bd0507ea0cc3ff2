package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/cache"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/events"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/lock"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/logging"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/xid"
)

// LateReturnValuer prices the late returns that arrived in a shipment, for
// the net sales figure of its settlement.
type LateReturnValuer interface {
	Value(ctx context.Context, r store.Reader, shipment domain.Shipment, returns []domain.Carryover) (decimal.Decimal, error)
}

// ZeroLateReturns values every late return at zero. No costing rule for
// returned stock has been agreed yet.
type ZeroLateReturns struct{}

func (ZeroLateReturns) Value(_ context.Context, _ store.Reader, _ domain.Shipment, _ []domain.Carryover) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type Options struct {
	CommissionRate decimal.Decimal
	Reports        cache.ReportCache
	ReportTTL      time.Duration
	Guard          lock.Guard
	Publisher      events.Publisher
	LateReturns    LateReturnValuer
	Logger         *logrus.Logger
	Now            func() time.Time
}

type Service struct {
	repo           store.Repository
	commissionRate decimal.Decimal
	reports        cache.ReportCache
	reportTTL      time.Duration
	guard          lock.Guard
	publisher      events.Publisher
	lateReturns    LateReturnValuer
	log            *logrus.Entry
	now            func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Reports == nil {
		opts.Reports = cache.NoopReportCache{}
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = 5 * time.Minute
	}
	if opts.Guard == nil {
		opts.Guard = lock.NoopGuard{}
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NoopPublisher{}
	}
	if opts.LateReturns == nil {
		opts.LateReturns = ZeroLateReturns{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:           repo,
		commissionRate: opts.CommissionRate,
		reports:        opts.Reports,
		reportTTL:      opts.ReportTTL,
		guard:          opts.Guard,
		publisher:      opts.Publisher,
		lateReturns:    opts.LateReturns,
		log:            logging.Module(opts.Logger, "service"),
		now:            opts.Now,
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, ref domain.EntityRef, limit int) ([]domain.AuditLog, error) {
	if !ref.Kind.Valid() || ref.ID == "" {
		return nil, invalidf("unknown entity %q", ref.String())
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, ref, limit)
}

// logAudit records a committed change. A failed audit write is logged and
// does not undo the change.
func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action string, ref domain.EntityRef, detail string) {
	if actor.Username == "" {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		Entity:        ref,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.log.WithFields(logrus.Fields{
			"action": action,
			"entity": ref.String(),
		}).WithError(err).Warn("failed to write audit log")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, key string, actor domain.Actor, data any) {
	err := s.publisher.Publish(ctx, events.Event{
		ID:         xid.New("evt"),
		Type:       eventType,
		Key:        key,
		Actor:      actor.Username,
		OccurredAt: s.now(),
		Data:       data,
	})
	if err != nil {
		logging.LogError(s.log, "publish", "publish "+eventType, key, err)
	}
}

func (s *Service) invalidateReport(ctx context.Context, shipmentID int64) {
	if err := s.reports.Delete(ctx, reportCacheKey(shipmentID)); err != nil {
		s.log.WithField("shipment_id", shipmentID).WithError(err).Warn("failed to evict settlement report")
	}
}

// withSupplierGuard serialises balance chain rewrites of one supplier.
func (s *Service) withSupplierGuard(ctx context.Context, supplierID string, fn func() error) error {
	release, err := s.guard.Acquire(ctx, "settlement:"+supplierID)
	if errors.Is(err, lock.ErrBusy) {
		return fmt.Errorf("settlement of supplier %s in progress: %w", supplierID, store.ErrContention)
	}
	if err != nil {
		return fmt.Errorf("acquire settlement guard: %w", err)
	}
	defer release()
	return fn()
}

func validateActor(actor domain.Actor) error {
	if actor.Username == "" {
		return invalidf("actor is required")
	}
	return nil
}

func validateAsOf(asOf time.Time) error {
	if asOf.IsZero() {
		return invalidf("working date is required")
	}
	return nil
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func reportCacheKey(shipmentID int64) string {
	return fmt.Sprintf("shipment:%d", shipmentID)
}
