package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

func (t *txn) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" || supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO suppliers (id, name, opening_balance, created_at)
		VALUES ($1,$2,$3,COALESCE($4, now()))
		RETURNING created_at
	`, supplier.ID, supplier.Name, supplier.OpeningBalance.Round(2), nullIfZero(supplier.CreatedAt)).Scan(&supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	return &supplier, nil
}

func (t *txn) CreateShipment(ctx context.Context, shipment domain.Shipment) (*domain.Shipment, error) {
	return scanShipment(t.q.QueryRowContext(ctx, `
		INSERT INTO shipments (supplier_id, arrival_date, status, created_at)
		VALUES ($1,$2,$3,COALESCE($4, now()))
		RETURNING `+shipmentColumns,
		shipment.SupplierID, dateUTC(shipment.ArrivalDate), string(shipment.Status), nullIfZero(shipment.CreatedAt)))
}

// UpdateShipment writes status and settlement figures. The fifo sequence and
// creation stamp are never rewritten.
func (t *txn) UpdateShipment(ctx context.Context, shipment domain.Shipment) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE shipments
		SET arrival_date = $2,
			status = $3,
			total_sales = $4,
			total_sold_quantity = $5,
			total_wastage = $6,
			total_carryover_out = $7,
			total_supplier_expenses = $8,
			supplier_payments = $9,
			late_returns_value = $10,
			commission_rate = $11,
			commission = $12,
			net_sales = $13,
			previous_supplier_balance = $14,
			final_supplier_balance = $15,
			settled_at = $16,
			settled_on = $17,
			settled_by = $18
		WHERE id = $1
	`, shipment.ID, dateUTC(shipment.ArrivalDate), string(shipment.Status),
		shipment.TotalSales.Round(2), shipment.TotalSoldQuantity, shipment.TotalWastage, shipment.TotalCarryoverOut,
		shipment.TotalSupplierExpenses.Round(2), shipment.SupplierPayments.Round(2), shipment.LateReturnsValue.Round(2),
		shipment.CommissionRate, shipment.Commission.Round(2), shipment.NetSales.Round(2),
		shipment.PreviousSupplierBalance.Round(2), shipment.FinalSupplierBalance.Round(2),
		nullTime(shipment.SettledAt), nullDate(shipment.SettledOn), shipment.SettledBy)
	return expectOne(res, err, "shipment", shipment.ID)
}

func (t *txn) CreateItem(ctx context.Context, item domain.ShipmentItem) (*domain.ShipmentItem, error) {
	if err := item.CheckBalance(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	return scanItem(t.q.QueryRowContext(ctx, `
		INSERT INTO shipment_items AS si (
			shipment_id, product_id, weight_per_unit,
			intake_quantity, initial_quantity, sold_quantity,
			carryover_in_quantity, carryover_out_quantity, remaining_quantity,
			sold_amount, wastage_weight, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
		RETURNING `+itemColumns,
		item.ShipmentID, item.ProductID, item.WeightPerUnit,
		item.IntakeQuantity, item.InitialQuantity, item.SoldQuantity,
		item.CarryoverInQuantity, item.CarryoverOutQuantity, item.RemainingQuantity,
		item.SoldAmount.Round(2), item.WastageWeight))
}

func (t *txn) UpdateItem(ctx context.Context, item domain.ShipmentItem) error {
	if err := item.CheckBalance(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	res, err := t.q.ExecContext(ctx, `
		UPDATE shipment_items
		SET intake_quantity = $2,
			initial_quantity = $3,
			sold_quantity = $4,
			carryover_in_quantity = $5,
			carryover_out_quantity = $6,
			remaining_quantity = $7,
			sold_amount = $8,
			wastage_weight = $9,
			updated_at = now()
		WHERE id = $1
	`, item.ID, item.IntakeQuantity, item.InitialQuantity, item.SoldQuantity,
		item.CarryoverInQuantity, item.CarryoverOutQuantity, item.RemainingQuantity,
		item.SoldAmount.Round(2), item.WastageWeight)
	return expectOne(res, err, "shipment item", item.ID)
}

// DeleteItem relies on the foreign keys of invoice_lines and carryovers to
// refuse items that are still referenced.
func (t *txn) DeleteItem(ctx context.Context, id int64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM shipment_items WHERE id = $1`, id)
	return expectOne(res, err, "shipment item", id)
}

func (t *txn) CreateInvoiceLine(ctx context.Context, line domain.InvoiceLine) (*domain.InvoiceLine, error) {
	if line.Quantity <= 0 {
		return nil, store.ErrInvalidTransaction
	}
	return scanLine(t.q.QueryRowContext(ctx, `
		INSERT INTO invoice_lines (
			invoice_id, shipment_item_id, shipment_id, product_id, quantity, weight,
			unit_price, total, working_date, status, returned_quantity, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,COALESCE($13, now()))
		RETURNING `+lineColumns,
		line.InvoiceID, line.ShipmentItemID, line.ShipmentID, line.ProductID, line.Quantity, line.Weight,
		line.UnitPrice.Round(2), line.Total.Round(2), dateUTC(line.WorkingDate), string(line.Status),
		line.ReturnedQuantity, line.CreatedBy, nullIfZero(line.CreatedAt)))
}

// UpdateInvoiceLine changes only the lifecycle fields of a line.
func (t *txn) UpdateInvoiceLine(ctx context.Context, line domain.InvoiceLine) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE invoice_lines
		SET status = $2,
			returned_quantity = $3,
			reversed_at = $4,
			reversed_by = $5
		WHERE id = $1
	`, line.ID, string(line.Status), line.ReturnedQuantity, nullTime(line.ReversedAt), line.ReversedBy)
	return expectOne(res, err, "invoice line", line.ID)
}

func (t *txn) CreateCarryover(ctx context.Context, carryover domain.Carryover) (*domain.Carryover, error) {
	if carryover.Quantity <= 0 {
		return nil, store.ErrInvalidTransaction
	}
	return scanCarryover(t.q.QueryRowContext(ctx, `
		INSERT INTO carryovers (
			from_item_id, to_item_id, from_shipment_id, to_shipment_id,
			quantity, reason, invoice_line_id, created_at, created_by
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,COALESCE($8, now()),$9)
		RETURNING `+carryoverColumns,
		carryover.FromItemID, carryover.ToItemID, carryover.FromShipmentID, carryover.ToShipmentID,
		carryover.Quantity, string(carryover.Reason), nullInt64(carryover.InvoiceLineID), nullIfZero(carryover.CreatedAt), carryover.CreatedBy))
}

func (t *txn) DeleteCarryover(ctx context.Context, id int64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM carryovers WHERE id = $1`, id)
	return expectOne(res, err, "carryover", id)
}

func (t *txn) CreateSupplierExpense(ctx context.Context, expense domain.SupplierExpense) (*domain.SupplierExpense, error) {
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO supplier_expenses (supplier_id, shipment_id, kind, amount, posted_on, created_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, expense.SupplierID, expense.ShipmentID, string(expense.Kind), expense.Amount.Round(2), dateUTC(expense.PostedOn), expense.CreatedBy).Scan(&expense.ID)
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (t *txn) CreateSupplierPayment(ctx context.Context, payment domain.SupplierPayment) (*domain.SupplierPayment, error) {
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO supplier_payments (supplier_id, amount, paid_on, created_by)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, payment.SupplierID, payment.Amount.Round(2), dateUTC(payment.PaidOn), payment.CreatedBy).Scan(&payment.ID)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (t *txn) ConsumeSupplierPayments(ctx context.Context, supplierID string, until time.Time, shipmentID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.q.QueryRowContext(ctx, `
		WITH consumed AS (
			UPDATE supplier_payments
			SET settled_shipment_id = $3
			WHERE supplier_id = $1 AND settled_shipment_id IS NULL AND paid_on <= $2::date
			RETURNING amount
		)
		SELECT COALESCE(SUM(amount), 0) FROM consumed
	`, supplierID, dateUTC(until), shipmentID).Scan(&total)
	return total, err
}

func (t *txn) ReleaseSupplierPayments(ctx context.Context, shipmentID int64) error {
	_, err := t.q.ExecContext(ctx, `UPDATE supplier_payments SET settled_shipment_id = NULL WHERE settled_shipment_id = $1`, shipmentID)
	return err
}

func expectOne(res sql.Result, err error, kind string, id int64) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, store.ErrNotFound)
	}
	return nil
}
