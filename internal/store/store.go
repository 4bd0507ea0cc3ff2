package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrContention means a lock could not be acquired in time. It is the
	// only error a caller may retry.
	ErrContention = errors.New("ledger contention, retry later")
)

// Reader is the read side of the ledger. Nothing here takes row locks.
type Reader interface {
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	GetShipment(ctx context.Context, id int64) (*domain.Shipment, error)
	GetShipmentItem(ctx context.Context, id int64) (*domain.ShipmentItem, error)
	ListShipmentItems(ctx context.Context, shipmentID int64) ([]domain.ShipmentItem, error)
	ListEligibleItems(ctx context.Context, productID string) ([]domain.EligibleItem, error)
	GetInvoiceLine(ctx context.Context, id int64) (*domain.InvoiceLine, error)
	ListInvoiceLinesByShipment(ctx context.Context, shipmentID int64) ([]domain.InvoiceLine, error)
	CountInvoiceLinesForItem(ctx context.Context, itemID int64) (int, error)
	ListCarryoversFrom(ctx context.Context, shipmentID int64, reason domain.CarryoverReason) ([]domain.Carryover, error)
	ListCarryoversInto(ctx context.Context, shipmentID int64, reason domain.CarryoverReason) ([]domain.Carryover, error)
	// PreviousSettledShipment returns the supplier's settled shipment with
	// the greatest fifo sequence below beforeSequence, or ErrNotFound.
	PreviousSettledShipment(ctx context.Context, supplierID string, beforeSequence int64) (*domain.Shipment, error)
	LaterSettledShipmentExists(ctx context.Context, supplierID string, afterSequence int64) (bool, error)
	SumSupplierExpenses(ctx context.Context, shipmentID int64, kind domain.ExpenseKind) (decimal.Decimal, error)
}

// Tx is a unit of work. Lock* methods hold row locks until the enclosing
// transaction ends.
type Tx interface {
	Reader

	LockSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	// LockShipments locks the given shipments in ascending id order.
	LockShipments(ctx context.Context, ids ...int64) (map[int64]domain.Shipment, error)
	LockShipmentItems(ctx context.Context, shipmentID int64) ([]domain.ShipmentItem, error)
	LockEligibleItems(ctx context.Context, productID string) ([]domain.EligibleItem, error)
	LockItem(ctx context.Context, id int64) (*domain.ShipmentItem, error)
	LockInvoiceLine(ctx context.Context, id int64) (*domain.InvoiceLine, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	CreateShipment(ctx context.Context, shipment domain.Shipment) (*domain.Shipment, error)
	UpdateShipment(ctx context.Context, shipment domain.Shipment) error
	CreateItem(ctx context.Context, item domain.ShipmentItem) (*domain.ShipmentItem, error)
	UpdateItem(ctx context.Context, item domain.ShipmentItem) error
	DeleteItem(ctx context.Context, id int64) error
	CreateInvoiceLine(ctx context.Context, line domain.InvoiceLine) (*domain.InvoiceLine, error)
	UpdateInvoiceLine(ctx context.Context, line domain.InvoiceLine) error
	CreateCarryover(ctx context.Context, carryover domain.Carryover) (*domain.Carryover, error)
	DeleteCarryover(ctx context.Context, id int64) error
	CreateSupplierExpense(ctx context.Context, expense domain.SupplierExpense) (*domain.SupplierExpense, error)
	CreateSupplierPayment(ctx context.Context, payment domain.SupplierPayment) (*domain.SupplierPayment, error)
	// ConsumeSupplierPayments stamps every unconsumed payment of the supplier
	// dated on or before until with shipmentID and returns their total.
	ConsumeSupplierPayments(ctx context.Context, supplierID string, until time.Time, shipmentID int64) (decimal.Decimal, error)
	// ReleaseSupplierPayments clears the stamp left by shipmentID's settlement.
	ReleaseSupplierPayments(ctx context.Context, shipmentID int64) error
}

type Repository interface {
	// WithTx runs fn in one transaction. fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(r Reader) error) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, ref domain.EntityRef, limit int) ([]domain.AuditLog, error)
}
