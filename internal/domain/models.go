package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ShipmentStatus string

const (
	ShipmentOpen    ShipmentStatus = "open"
	ShipmentClosed  ShipmentStatus = "closed"
	ShipmentSettled ShipmentStatus = "settled"
)

// Eligible reports whether items of a shipment in this status may be
// consumed by allocation.
func (s ShipmentStatus) Eligible() bool {
	return s == ShipmentOpen || s == ShipmentClosed
}

type CarryoverReason string

const (
	ReasonEndOfShipment CarryoverReason = "end_of_shipment"
	ReasonLateReturn    CarryoverReason = "late_return"
)

type LineStatus string

const (
	LineActive   LineStatus = "active"
	LineReversed LineStatus = "reversed"
)

type ExpenseKind string

const (
	ExpenseSupplier ExpenseKind = "supplier"
	ExpenseCompany  ExpenseKind = "company"
)

const (
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleSales      = "sales"
)

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type Supplier struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Shipment struct {
	ID           int64          `json:"id"`
	SupplierID   string         `json:"supplier_id"`
	ArrivalDate  time.Time      `json:"arrival_date"`
	FIFOSequence int64          `json:"fifo_sequence"`
	Status       ShipmentStatus `json:"status"`

	TotalSales              decimal.Decimal `json:"total_sales"`
	TotalSoldQuantity       Cartons         `json:"total_sold_quantity"`
	TotalWastage            Weight          `json:"total_wastage"`
	TotalCarryoverOut       Cartons         `json:"total_carryover_out"`
	TotalSupplierExpenses   decimal.Decimal `json:"total_supplier_expenses"`
	SupplierPayments        decimal.Decimal `json:"supplier_payments"`
	LateReturnsValue        decimal.Decimal `json:"late_returns_value"`
	CommissionRate          decimal.Decimal `json:"commission_rate"`
	Commission              decimal.Decimal `json:"commission"`
	NetSales                decimal.Decimal `json:"net_sales"`
	PreviousSupplierBalance decimal.Decimal `json:"previous_supplier_balance"`
	FinalSupplierBalance    decimal.Decimal `json:"final_supplier_balance"`

	SettledAt *time.Time `json:"settled_at,omitempty"`
	SettledOn *time.Time `json:"settled_on,omitempty"`
	SettledBy string     `json:"settled_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ClearSettlement drops every figure written by settlement and returns the
// shipment to closed.
func (s *Shipment) ClearSettlement() {
	s.Status = ShipmentClosed
	s.TotalSales = decimal.Zero
	s.TotalSoldQuantity = 0
	s.TotalWastage = Weight{}
	s.TotalCarryoverOut = 0
	s.TotalSupplierExpenses = decimal.Zero
	s.SupplierPayments = decimal.Zero
	s.LateReturnsValue = decimal.Zero
	s.CommissionRate = decimal.Zero
	s.Commission = decimal.Zero
	s.NetSales = decimal.Zero
	s.PreviousSupplierBalance = decimal.Zero
	s.FinalSupplierBalance = decimal.Zero
	s.SettledAt = nil
	s.SettledOn = nil
	s.SettledBy = ""
}

type ShipmentItem struct {
	ID            int64  `json:"id"`
	ShipmentID    int64  `json:"shipment_id"`
	ProductID     string `json:"product_id"`
	WeightPerUnit Weight `json:"weight_per_unit"`

	IntakeQuantity       Cartons `json:"intake_quantity"`
	InitialQuantity      Cartons `json:"initial_quantity"`
	SoldQuantity         Cartons `json:"sold_quantity"`
	CarryoverInQuantity  Cartons `json:"carryover_in_quantity"`
	CarryoverOutQuantity Cartons `json:"carryover_out_quantity"`
	RemainingQuantity    Cartons `json:"remaining_quantity"`

	SoldAmount    decimal.Decimal `json:"sold_amount"`
	WastageWeight Weight          `json:"wastage_weight"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EligibleItem is a shipment item together with the shipment fields that
// decide its place in the consumption order.
type EligibleItem struct {
	ShipmentItem
	FIFOSequence   int64          `json:"fifo_sequence"`
	ShipmentStatus ShipmentStatus `json:"shipment_status"`
}

type Carryover struct {
	ID             int64           `json:"id"`
	FromItemID     int64           `json:"from_item_id"`
	ToItemID       int64           `json:"to_item_id"`
	FromShipmentID int64           `json:"from_shipment_id"`
	ToShipmentID   int64           `json:"to_shipment_id"`
	Quantity       Cartons         `json:"quantity"`
	Reason         CarryoverReason `json:"reason"`
	InvoiceLineID  int64           `json:"invoice_line_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CreatedBy      string          `json:"created_by"`
}

type InvoiceLine struct {
	ID               int64           `json:"id"`
	InvoiceID        string          `json:"invoice_id"`
	ShipmentItemID   int64           `json:"shipment_item_id"`
	ShipmentID       int64           `json:"shipment_id"`
	ProductID        string          `json:"product_id"`
	Quantity         Cartons         `json:"quantity"`
	Weight           Weight          `json:"weight"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Total            decimal.Decimal `json:"total"`
	WorkingDate      time.Time       `json:"working_date"`
	Status           LineStatus      `json:"status"`
	ReturnedQuantity Cartons         `json:"returned_quantity"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	ReversedAt       *time.Time      `json:"reversed_at,omitempty"`
	ReversedBy       string          `json:"reversed_by,omitempty"`
}

type SupplierExpense struct {
	ID         int64           `json:"id"`
	SupplierID string          `json:"supplier_id"`
	ShipmentID int64           `json:"shipment_id"`
	Kind       ExpenseKind     `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	PostedOn   time.Time       `json:"posted_on"`
	CreatedBy  string          `json:"created_by"`
}

// SupplierPayment is consumed by exactly one settlement; SettledShipmentID
// is zero until then and again after that settlement is reversed.
type SupplierPayment struct {
	ID                int64           `json:"id"`
	SupplierID        string          `json:"supplier_id"`
	Amount            decimal.Decimal `json:"amount"`
	PaidOn            time.Time       `json:"paid_on"`
	SettledShipmentID int64           `json:"settled_shipment_id,omitempty"`
	CreatedBy         string          `json:"created_by"`
}

type AllocationEntry struct {
	ItemID        int64   `json:"shipment_item_id"`
	ShipmentID    int64   `json:"shipment_id"`
	FIFOSequence  int64   `json:"fifo_sequence"`
	WeightPerUnit Weight  `json:"weight_per_unit"`
	Quantity      Cartons `json:"quantity"`
}

type AllocationPlan struct {
	ProductID string            `json:"product_id"`
	Requested Cartons           `json:"requested"`
	Entries   []AllocationEntry `json:"entries"`
}

type StockLevel struct {
	ProductID string         `json:"product_id"`
	Available Cartons        `json:"available"`
	Breakdown []EligibleItem `json:"breakdown"`
}

type ProductSettlementLine struct {
	ProductID          string          `json:"product_id"`
	SoldQuantity       Cartons         `json:"sold_quantity"`
	SoldWeight         Weight          `json:"sold_weight"`
	Revenue            decimal.Decimal `json:"revenue"`
	IncomingQuantity   Cartons         `json:"incoming_quantity"`
	IncomingWeight     Weight          `json:"incoming_weight"`
	CarriedOutQuantity Cartons         `json:"carried_out_quantity"`
	CarriedOutWeight   Weight          `json:"carried_out_weight"`
	WastageWeight      Weight          `json:"wastage_weight"`
}

type SettlementReport struct {
	ShipmentID   int64          `json:"shipment_id"`
	SupplierID   string         `json:"supplier_id"`
	SupplierName string         `json:"supplier_name"`
	FIFOSequence int64          `json:"fifo_sequence"`
	ArrivalDate  time.Time      `json:"arrival_date"`
	Status       ShipmentStatus `json:"status"`
	SettledOn    *time.Time     `json:"settled_on,omitempty"`

	Products         []ProductSettlementLine `json:"products"`
	SoldQuantity     Cartons                 `json:"sold_quantity"`
	IncomingWeight   Weight                  `json:"incoming_weight"`
	CarriedOutWeight Weight                  `json:"carried_out_weight"`
	WastageWeight    Weight                  `json:"wastage_weight"`

	TotalSales              decimal.Decimal `json:"total_sales"`
	LateReturnsValue        decimal.Decimal `json:"late_returns_value"`
	NetSales                decimal.Decimal `json:"net_sales"`
	CommissionRate          decimal.Decimal `json:"commission_rate"`
	Commission              decimal.Decimal `json:"commission"`
	TotalSupplierExpenses   decimal.Decimal `json:"total_supplier_expenses"`
	PreviousSupplierBalance decimal.Decimal `json:"previous_supplier_balance"`
	SupplierPayments        decimal.Decimal `json:"supplier_payments"`
	ComputedFinalBalance    decimal.Decimal `json:"computed_final_balance"`
	StoredFinalBalance      decimal.Decimal `json:"stored_final_balance"`

	Consistent    bool      `json:"consistent"`
	Discrepancies []string  `json:"discrepancies,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}

type AllocateRequest struct {
	InvoiceID string          `json:"invoice_id"`
	ProductID string          `json:"product_id"`
	Quantity  Cartons         `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Actor     Actor           `json:"-"`
	AsOf      time.Time       `json:"as_of"`
}

type ReverseRequest struct {
	InvoiceLineID int64     `json:"invoice_line_id"`
	Actor         Actor     `json:"-"`
	AsOf          time.Time `json:"as_of"`
}

type SettleRequest struct {
	ShipmentID     int64     `json:"shipment_id"`
	NextShipmentID int64     `json:"next_shipment_id"`
	Actor          Actor     `json:"-"`
	AsOf           time.Time `json:"as_of"`
}

type UnsettleRequest struct {
	ShipmentID int64     `json:"shipment_id"`
	Actor      Actor     `json:"-"`
	AsOf       time.Time `json:"as_of"`
}

type LateReturnRequest struct {
	InvoiceLineID    int64     `json:"invoice_line_id"`
	TargetShipmentID int64     `json:"target_shipment_id"`
	Quantity         Cartons   `json:"quantity"`
	Actor            Actor     `json:"-"`
	AsOf             time.Time `json:"as_of"`
}

type SupplierCreateRequest struct {
	Name           string          `json:"name"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Actor          Actor           `json:"-"`
}

type ShipmentCreateRequest struct {
	SupplierID  string    `json:"supplier_id"`
	ArrivalDate time.Time `json:"arrival_date"`
	Actor       Actor     `json:"-"`
}

type ShipmentItemCreateRequest struct {
	ShipmentID    int64   `json:"shipment_id"`
	ProductID     string  `json:"product_id"`
	WeightPerUnit Weight  `json:"weight_per_unit"`
	Quantity      Cartons `json:"quantity"`
	Actor         Actor   `json:"-"`
}

type WastageRequest struct {
	ShipmentItemID int64  `json:"shipment_item_id"`
	Weight         Weight `json:"weight"`
	Actor          Actor  `json:"-"`
}

type SupplierExpenseRequest struct {
	ShipmentID int64           `json:"shipment_id"`
	Kind       ExpenseKind     `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Actor      Actor           `json:"-"`
	AsOf       time.Time       `json:"as_of"`
}

type SupplierPaymentRequest struct {
	SupplierID string          `json:"supplier_id"`
	Amount     decimal.Decimal `json:"amount"`
	Actor      Actor           `json:"-"`
	AsOf       time.Time       `json:"as_of"`
}
