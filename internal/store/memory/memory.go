package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

const defaultLockWait = 5 * time.Second

// Store keeps the ledger in process memory. Writers are serialised and work
// on a private copy of the state that replaces the shared one on commit, so
// readers always see a committed snapshot and a failed transaction leaves
// no trace.
type Store struct {
	mu       sync.RWMutex
	current  *state
	writer   chan struct{}
	lockWait time.Duration

	auditMu   sync.Mutex
	auditLogs []domain.AuditLog
}

type state struct {
	nextShipmentID  int64
	nextSequence    int64
	nextItemID      int64
	nextLineID      int64
	nextCarryoverID int64
	nextExpenseID   int64
	nextPaymentID   int64

	suppliers  map[string]domain.Supplier
	shipments  map[int64]domain.Shipment
	items      map[int64]domain.ShipmentItem
	lines      map[int64]domain.InvoiceLine
	carryovers map[int64]domain.Carryover
	expenses   []domain.SupplierExpense
	payments   []domain.SupplierPayment
}

func New() *Store {
	return NewWithLockWait(defaultLockWait)
}

// NewWithLockWait bounds how long a writer waits for its turn before
// failing with store.ErrContention.
func NewWithLockWait(wait time.Duration) *Store {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &Store{
		current: &state{
			suppliers:  make(map[string]domain.Supplier),
			shipments:  make(map[int64]domain.Shipment),
			items:      make(map[int64]domain.ShipmentItem),
			lines:      make(map[int64]domain.InvoiceLine),
			carryovers: make(map[int64]domain.Carryover),
		},
		writer:   make(chan struct{}, 1),
		lockWait: wait,
	}
}

// NewSeeded returns a store holding one demo supplier with an open shipment,
// for running the server without a database.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	_ = s.WithTx(context.Background(), func(tx store.Tx) error {
		if _, err := tx.CreateSupplier(context.Background(), domain.Supplier{
			ID:             "sup-demo",
			Name:           "Demo Growers",
			OpeningBalance: decimal.Zero,
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		shipment, err := tx.CreateShipment(context.Background(), domain.Shipment{
			SupplierID:  "sup-demo",
			ArrivalDate: now.Truncate(24 * time.Hour),
			Status:      domain.ShipmentOpen,
		})
		if err != nil {
			return err
		}
		for _, item := range []domain.ShipmentItem{
			domain.NewIntakeItem(shipment.ID, "tomato", domain.MustKilograms("12.5"), 120),
			domain.NewIntakeItem(shipment.ID, "cucumber", domain.MustKilograms("10"), 80),
		} {
			if _, err := tx.CreateItem(context.Background(), item); err != nil {
				return err
			}
		}
		return nil
	})
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-s.writer }()

	s.mu.RLock()
	draft := s.current.clone()
	s.mu.RUnlock()

	if err := fn(&memTx{st: draft}); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = draft
	s.mu.Unlock()
	return nil
}

func (s *Store) View(_ context.Context, fn func(r store.Reader) error) error {
	s.mu.RLock()
	snapshot := s.current
	s.mu.RUnlock()
	return fn(&memTx{st: snapshot})
}

func (s *Store) acquire(ctx context.Context) error {
	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()

	select {
	case s.writer <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: waited %s for ledger lock", store.ErrContention, s.lockWait)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", store.ErrContention, ctx.Err())
	}
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if !entry.Entity.Kind.Valid() {
		return store.ErrInvalidTransaction
	}
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, ref domain.EntityRef, limit int) ([]domain.AuditLog, error) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	result := make([]domain.AuditLog, 0, 16)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		if s.auditLogs[i].Entity != ref {
			continue
		}
		result = append(result, s.auditLogs[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (st *state) clone() *state {
	dup := *st
	dup.suppliers = maps.Clone(st.suppliers)
	dup.shipments = maps.Clone(st.shipments)
	dup.items = maps.Clone(st.items)
	dup.lines = maps.Clone(st.lines)
	dup.carryovers = maps.Clone(st.carryovers)
	dup.expenses = slices.Clone(st.expenses)
	dup.payments = slices.Clone(st.payments)
	return &dup
}

type memTx struct {
	st *state
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*memTx)(nil)
)

func (t *memTx) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	supplier, ok := t.st.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &supplier, nil
}

func (t *memTx) GetShipment(_ context.Context, id int64) (*domain.Shipment, error) {
	shipment, ok := t.st.shipments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &shipment, nil
}

func (t *memTx) GetShipmentItem(_ context.Context, id int64) (*domain.ShipmentItem, error) {
	item, ok := t.st.items[id]
	if !ok {
		return nil, fmt.Errorf("shipment item %d: %w", id, store.ErrNotFound)
	}
	return &item, nil
}

func (t *memTx) ListShipmentItems(_ context.Context, shipmentID int64) ([]domain.ShipmentItem, error) {
	items := make([]domain.ShipmentItem, 0, 8)
	for _, item := range t.st.items {
		if item.ShipmentID == shipmentID {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b domain.ShipmentItem) int { return cmp.Compare(a.ID, b.ID) })
	return items, nil
}

func (t *memTx) ListEligibleItems(_ context.Context, productID string) ([]domain.EligibleItem, error) {
	eligible := make([]domain.EligibleItem, 0, 8)
	for _, item := range t.st.items {
		if item.ProductID != productID || item.RemainingQuantity <= 0 {
			continue
		}
		shipment, ok := t.st.shipments[item.ShipmentID]
		if !ok || !shipment.Status.Eligible() {
			continue
		}
		eligible = append(eligible, domain.EligibleItem{
			ShipmentItem:   item,
			FIFOSequence:   shipment.FIFOSequence,
			ShipmentStatus: shipment.Status,
		})
	}
	slices.SortFunc(eligible, compareFIFO)
	return eligible, nil
}

func (t *memTx) GetInvoiceLine(_ context.Context, id int64) (*domain.InvoiceLine, error) {
	line, ok := t.st.lines[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &line, nil
}

func (t *memTx) ListInvoiceLinesByShipment(_ context.Context, shipmentID int64) ([]domain.InvoiceLine, error) {
	lines := make([]domain.InvoiceLine, 0, 16)
	for _, line := range t.st.lines {
		if line.ShipmentID == shipmentID {
			lines = append(lines, line)
		}
	}
	slices.SortFunc(lines, func(a, b domain.InvoiceLine) int { return cmp.Compare(a.ID, b.ID) })
	return lines, nil
}

func (t *memTx) CountInvoiceLinesForItem(_ context.Context, itemID int64) (int, error) {
	count := 0
	for _, line := range t.st.lines {
		if line.ShipmentItemID == itemID {
			count++
		}
	}
	return count, nil
}

func (t *memTx) ListCarryoversFrom(_ context.Context, shipmentID int64, reason domain.CarryoverReason) ([]domain.Carryover, error) {
	return t.carryovers(func(c domain.Carryover) bool {
		return c.FromShipmentID == shipmentID && c.Reason == reason
	}), nil
}

func (t *memTx) ListCarryoversInto(_ context.Context, shipmentID int64, reason domain.CarryoverReason) ([]domain.Carryover, error) {
	return t.carryovers(func(c domain.Carryover) bool {
		return c.ToShipmentID == shipmentID && c.Reason == reason
	}), nil
}

func (t *memTx) carryovers(match func(domain.Carryover) bool) []domain.Carryover {
	result := make([]domain.Carryover, 0, 8)
	for _, c := range t.st.carryovers {
		if match(c) {
			result = append(result, c)
		}
	}
	slices.SortFunc(result, func(a, b domain.Carryover) int { return cmp.Compare(a.ID, b.ID) })
	return result
}

func (t *memTx) PreviousSettledShipment(_ context.Context, supplierID string, beforeSequence int64) (*domain.Shipment, error) {
	var found *domain.Shipment
	for _, shipment := range t.st.shipments {
		if shipment.SupplierID != supplierID || shipment.Status != domain.ShipmentSettled || shipment.FIFOSequence >= beforeSequence {
			continue
		}
		if found == nil || shipment.FIFOSequence > found.FIFOSequence {
			candidate := shipment
			found = &candidate
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (t *memTx) LaterSettledShipmentExists(_ context.Context, supplierID string, afterSequence int64) (bool, error) {
	for _, shipment := range t.st.shipments {
		if shipment.SupplierID == supplierID && shipment.Status == domain.ShipmentSettled && shipment.FIFOSequence > afterSequence {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SumSupplierExpenses(_ context.Context, shipmentID int64, kind domain.ExpenseKind) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, expense := range t.st.expenses {
		if expense.ShipmentID == shipmentID && expense.Kind == kind {
			total = total.Add(expense.Amount)
		}
	}
	return total, nil
}


func (t *memTx) LockSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	return t.GetSupplier(ctx, id)
}

func (t *memTx) LockShipments(_ context.Context, ids ...int64) (map[int64]domain.Shipment, error) {
	result := make(map[int64]domain.Shipment, len(ids))
	for _, id := range ids {
		shipment, ok := t.st.shipments[id]
		if !ok {
			return nil, fmt.Errorf("shipment %d: %w", id, store.ErrNotFound)
		}
		result[id] = shipment
	}
	return result, nil
}

func (t *memTx) LockShipmentItems(ctx context.Context, shipmentID int64) ([]domain.ShipmentItem, error) {
	return t.ListShipmentItems(ctx, shipmentID)
}

func (t *memTx) LockEligibleItems(ctx context.Context, productID string) ([]domain.EligibleItem, error) {
	return t.ListEligibleItems(ctx, productID)
}

func (t *memTx) LockItem(ctx context.Context, id int64) (*domain.ShipmentItem, error) {
	return t.GetShipmentItem(ctx, id)
}

func (t *memTx) LockInvoiceLine(ctx context.Context, id int64) (*domain.InvoiceLine, error) {
	return t.GetInvoiceLine(ctx, id)
}

func (t *memTx) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" || supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := t.st.suppliers[supplier.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	t.st.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (t *memTx) CreateShipment(_ context.Context, shipment domain.Shipment) (*domain.Shipment, error) {
	if _, ok := t.st.suppliers[shipment.SupplierID]; !ok {
		return nil, fmt.Errorf("supplier %s: %w", shipment.SupplierID, store.ErrNotFound)
	}
	t.st.nextShipmentID++
	t.st.nextSequence++
	shipment.ID = t.st.nextShipmentID
	shipment.FIFOSequence = t.st.nextSequence
	if shipment.CreatedAt.IsZero() {
		shipment.CreatedAt = time.Now().UTC()
	}
	t.st.shipments[shipment.ID] = shipment
	return &shipment, nil
}

func (t *memTx) UpdateShipment(_ context.Context, shipment domain.Shipment) error {
	existing, ok := t.st.shipments[shipment.ID]
	if !ok {
		return store.ErrNotFound
	}
	// The consumption order is fixed at creation.
	shipment.FIFOSequence = existing.FIFOSequence
	shipment.CreatedAt = existing.CreatedAt
	t.st.shipments[shipment.ID] = shipment
	return nil
}

func (t *memTx) CreateItem(_ context.Context, item domain.ShipmentItem) (*domain.ShipmentItem, error) {
	if _, ok := t.st.shipments[item.ShipmentID]; !ok {
		return nil, fmt.Errorf("shipment %d: %w", item.ShipmentID, store.ErrNotFound)
	}
	if err := item.CheckBalance(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	t.st.nextItemID++
	item.ID = t.st.nextItemID
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	t.st.items[item.ID] = item
	return &item, nil
}

func (t *memTx) UpdateItem(_ context.Context, item domain.ShipmentItem) error {
	existing, ok := t.st.items[item.ID]
	if !ok {
		return store.ErrNotFound
	}
	if err := item.CheckBalance(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	item.ShipmentID = existing.ShipmentID
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	t.st.items[item.ID] = item
	return nil
}

func (t *memTx) DeleteItem(_ context.Context, id int64) error {
	if _, ok := t.st.items[id]; !ok {
		return store.ErrNotFound
	}
	for _, line := range t.st.lines {
		if line.ShipmentItemID == id {
			return fmt.Errorf("%w: item %d is referenced by invoice line %d", store.ErrInvalidTransaction, id, line.ID)
		}
	}
	for _, c := range t.st.carryovers {
		if c.FromItemID == id || c.ToItemID == id {
			return fmt.Errorf("%w: item %d is referenced by carryover %d", store.ErrInvalidTransaction, id, c.ID)
		}
	}
	delete(t.st.items, id)
	return nil
}

func (t *memTx) CreateInvoiceLine(_ context.Context, line domain.InvoiceLine) (*domain.InvoiceLine, error) {
	if _, ok := t.st.items[line.ShipmentItemID]; !ok {
		return nil, fmt.Errorf("shipment item %d: %w", line.ShipmentItemID, store.ErrNotFound)
	}
	if line.Quantity <= 0 {
		return nil, store.ErrInvalidTransaction
	}
	t.st.nextLineID++
	line.ID = t.st.nextLineID
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}
	t.st.lines[line.ID] = line
	return &line, nil
}

func (t *memTx) UpdateInvoiceLine(_ context.Context, line domain.InvoiceLine) error {
	existing, ok := t.st.lines[line.ID]
	if !ok {
		return store.ErrNotFound
	}
	if line.ReturnedQuantity < 0 || line.ReturnedQuantity > existing.Quantity {
		return store.ErrInvalidTransaction
	}
	// Only the lifecycle fields of a line may change.
	existing.Status = line.Status
	existing.ReturnedQuantity = line.ReturnedQuantity
	existing.ReversedAt = line.ReversedAt
	existing.ReversedBy = line.ReversedBy
	t.st.lines[line.ID] = existing
	return nil
}

func (t *memTx) CreateCarryover(_ context.Context, carryover domain.Carryover) (*domain.Carryover, error) {
	if carryover.Quantity <= 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, ok := t.st.items[carryover.FromItemID]; !ok {
		return nil, fmt.Errorf("shipment item %d: %w", carryover.FromItemID, store.ErrNotFound)
	}
	if _, ok := t.st.items[carryover.ToItemID]; !ok {
		return nil, fmt.Errorf("shipment item %d: %w", carryover.ToItemID, store.ErrNotFound)
	}
	t.st.nextCarryoverID++
	carryover.ID = t.st.nextCarryoverID
	if carryover.CreatedAt.IsZero() {
		carryover.CreatedAt = time.Now().UTC()
	}
	t.st.carryovers[carryover.ID] = carryover
	return &carryover, nil
}

func (t *memTx) DeleteCarryover(_ context.Context, id int64) error {
	if _, ok := t.st.carryovers[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.carryovers, id)
	return nil
}

func (t *memTx) CreateSupplierExpense(_ context.Context, expense domain.SupplierExpense) (*domain.SupplierExpense, error) {
	if _, ok := t.st.shipments[expense.ShipmentID]; !ok {
		return nil, fmt.Errorf("shipment %d: %w", expense.ShipmentID, store.ErrNotFound)
	}
	t.st.nextExpenseID++
	expense.ID = t.st.nextExpenseID
	t.st.expenses = append(t.st.expenses, expense)
	return &expense, nil
}

func (t *memTx) CreateSupplierPayment(_ context.Context, payment domain.SupplierPayment) (*domain.SupplierPayment, error) {
	if _, ok := t.st.suppliers[payment.SupplierID]; !ok {
		return nil, fmt.Errorf("supplier %s: %w", payment.SupplierID, store.ErrNotFound)
	}
	t.st.nextPaymentID++
	payment.ID = t.st.nextPaymentID
	t.st.payments = append(t.st.payments, payment)
	return &payment, nil
}

func (t *memTx) ConsumeSupplierPayments(_ context.Context, supplierID string, until time.Time, shipmentID int64) (decimal.Decimal, error) {
	if _, ok := t.st.shipments[shipmentID]; !ok {
		return decimal.Zero, fmt.Errorf("shipment %d: %w", shipmentID, store.ErrNotFound)
	}
	total := decimal.Zero
	last := dateUTC(until)
	for i := range t.st.payments {
		payment := &t.st.payments[i]
		if payment.SupplierID != supplierID || payment.SettledShipmentID != 0 {
			continue
		}
		if dateUTC(payment.PaidOn).After(last) {
			continue
		}
		payment.SettledShipmentID = shipmentID
		total = total.Add(payment.Amount)
	}
	return total, nil
}

func (t *memTx) ReleaseSupplierPayments(_ context.Context, shipmentID int64) error {
	for i := range t.st.payments {
		if t.st.payments[i].SettledShipmentID == shipmentID {
			t.st.payments[i].SettledShipmentID = 0
		}
	}
	return nil
}

func compareFIFO(a, b domain.EligibleItem) int {
	if c := cmp.Compare(a.FIFOSequence, b.FIFOSequence); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}
