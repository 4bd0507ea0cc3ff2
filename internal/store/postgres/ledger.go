package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// txn implements store.Tx on one database transaction.
type txn struct {
	q querier
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*txn)(nil)
)

const shipmentColumns = `
	id, supplier_id, arrival_date, fifo_sequence, status,
	total_sales, total_sold_quantity, total_wastage, total_carryover_out,
	total_supplier_expenses, supplier_payments, late_returns_value,
	commission_rate, commission, net_sales,
	previous_supplier_balance, final_supplier_balance,
	settled_at, settled_on, settled_by, created_at`

const itemColumns = `
	si.id, si.shipment_id, si.product_id, si.weight_per_unit,
	si.intake_quantity, si.initial_quantity, si.sold_quantity,
	si.carryover_in_quantity, si.carryover_out_quantity, si.remaining_quantity,
	si.sold_amount, si.wastage_weight, si.created_at, si.updated_at`

const lineColumns = `
	id, invoice_id, shipment_item_id, shipment_id, product_id, quantity, weight,
	unit_price, total, working_date, status, returned_quantity,
	created_by, created_at, reversed_at, reversed_by`

const carryoverColumns = `
	id, from_item_id, to_item_id, from_shipment_id, to_shipment_id,
	quantity, reason, invoice_line_id, created_at, created_by`

// eligibleItemsQuery is the one place that defines which stock allocation
// may consume and in which order. The locking variant appends FOR UPDATE OF
// si so only item rows are locked.
const eligibleItemsQuery = `
	SELECT ` + itemColumns + `, sh.fifo_sequence, sh.status
	FROM shipment_items si
	JOIN shipments sh ON sh.id = si.shipment_id
	WHERE si.product_id = $1
		AND si.remaining_quantity > 0
		AND sh.status IN ('open', 'closed')
	ORDER BY sh.fifo_sequence ASC, si.id ASC`

func scanShipment(row scanner) (*domain.Shipment, error) {
	var (
		shipment  domain.Shipment
		settledAt sql.NullTime
		settledOn sql.NullTime
	)
	err := row.Scan(
		&shipment.ID, &shipment.SupplierID, &shipment.ArrivalDate, &shipment.FIFOSequence, &shipment.Status,
		&shipment.TotalSales, &shipment.TotalSoldQuantity, &shipment.TotalWastage, &shipment.TotalCarryoverOut,
		&shipment.TotalSupplierExpenses, &shipment.SupplierPayments, &shipment.LateReturnsValue,
		&shipment.CommissionRate, &shipment.Commission, &shipment.NetSales,
		&shipment.PreviousSupplierBalance, &shipment.FinalSupplierBalance,
		&settledAt, &settledOn, &shipment.SettledBy, &shipment.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	shipment.ArrivalDate = dateUTC(shipment.ArrivalDate)
	shipment.CreatedAt = shipment.CreatedAt.UTC()
	shipment.SettledAt = timePtr(settledAt)
	if on := timePtr(settledOn); on != nil {
		d := dateUTC(*on)
		shipment.SettledOn = &d
	}
	return &shipment, nil
}

func itemDest(item *domain.ShipmentItem) []any {
	return []any{
		&item.ID, &item.ShipmentID, &item.ProductID, &item.WeightPerUnit,
		&item.IntakeQuantity, &item.InitialQuantity, &item.SoldQuantity,
		&item.CarryoverInQuantity, &item.CarryoverOutQuantity, &item.RemainingQuantity,
		&item.SoldAmount, &item.WastageWeight, &item.CreatedAt, &item.UpdatedAt,
	}
}

func scanItem(row scanner) (*domain.ShipmentItem, error) {
	var item domain.ShipmentItem
	if err := row.Scan(itemDest(&item)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func scanLine(row scanner) (*domain.InvoiceLine, error) {
	var (
		line       domain.InvoiceLine
		reversedAt sql.NullTime
	)
	err := row.Scan(
		&line.ID, &line.InvoiceID, &line.ShipmentItemID, &line.ShipmentID, &line.ProductID, &line.Quantity, &line.Weight,
		&line.UnitPrice, &line.Total, &line.WorkingDate, &line.Status, &line.ReturnedQuantity,
		&line.CreatedBy, &line.CreatedAt, &reversedAt, &line.ReversedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	line.WorkingDate = dateUTC(line.WorkingDate)
	line.CreatedAt = line.CreatedAt.UTC()
	line.ReversedAt = timePtr(reversedAt)
	return &line, nil
}

func scanCarryover(row scanner) (*domain.Carryover, error) {
	var (
		c      domain.Carryover
		lineID sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.FromItemID, &c.ToItemID, &c.FromShipmentID, &c.ToShipmentID,
		&c.Quantity, &c.Reason, &lineID, &c.CreatedAt, &c.CreatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.InvoiceLineID = lineID.Int64
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (t *txn) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	return t.supplier(ctx, id, "")
}

func (t *txn) LockSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	return t.supplier(ctx, id, " FOR UPDATE")
}

func (t *txn) supplier(ctx context.Context, id string, suffix string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := t.q.QueryRowContext(ctx, `
		SELECT id, name, opening_balance, created_at
		FROM suppliers
		WHERE id = $1`+suffix, id).Scan(&supplier.ID, &supplier.Name, &supplier.OpeningBalance, &supplier.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	supplier.CreatedAt = supplier.CreatedAt.UTC()
	return &supplier, nil
}

func (t *txn) GetShipment(ctx context.Context, id int64) (*domain.Shipment, error) {
	return scanShipment(t.q.QueryRowContext(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id))
}

func (t *txn) LockShipments(ctx context.Context, ids ...int64) (map[int64]domain.Shipment, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	rows, err := t.q.QueryContext(ctx, `
		SELECT `+shipmentColumns+`
		FROM shipments
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64]domain.Shipment, len(sorted))
	for rows.Next() {
		shipment, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		result[shipment.ID] = *shipment
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range sorted {
		if _, ok := result[id]; !ok {
			return nil, fmt.Errorf("shipment %d: %w", id, store.ErrNotFound)
		}
	}
	return result, nil
}

func (t *txn) PreviousSettledShipment(ctx context.Context, supplierID string, beforeSequence int64) (*domain.Shipment, error) {
	return scanShipment(t.q.QueryRowContext(ctx, `
		SELECT `+shipmentColumns+`
		FROM shipments
		WHERE supplier_id = $1 AND status = 'settled' AND fifo_sequence < $2
		ORDER BY fifo_sequence DESC
		LIMIT 1
	`, supplierID, beforeSequence))
}

func (t *txn) LaterSettledShipmentExists(ctx context.Context, supplierID string, afterSequence int64) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM shipments
			WHERE supplier_id = $1 AND status = 'settled' AND fifo_sequence > $2
		)
	`, supplierID, afterSequence).Scan(&exists)
	return exists, err
}

func (t *txn) GetShipmentItem(ctx context.Context, id int64) (*domain.ShipmentItem, error) {
	item, err := scanItem(t.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM shipment_items si WHERE si.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("shipment item %d: %w", id, err)
	}
	return item, nil
}

func (t *txn) LockItem(ctx context.Context, id int64) (*domain.ShipmentItem, error) {
	item, err := scanItem(t.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM shipment_items si WHERE si.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("shipment item %d: %w", id, err)
	}
	return item, nil
}

func (t *txn) ListShipmentItems(ctx context.Context, shipmentID int64) ([]domain.ShipmentItem, error) {
	return t.items(ctx, `SELECT `+itemColumns+` FROM shipment_items si WHERE si.shipment_id = $1 ORDER BY si.id`, shipmentID)
}

func (t *txn) LockShipmentItems(ctx context.Context, shipmentID int64) ([]domain.ShipmentItem, error) {
	return t.items(ctx, `SELECT `+itemColumns+` FROM shipment_items si WHERE si.shipment_id = $1 ORDER BY si.id FOR UPDATE`, shipmentID)
}

func (t *txn) items(ctx context.Context, query string, args ...any) ([]domain.ShipmentItem, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ShipmentItem, 0, 16)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (t *txn) ListEligibleItems(ctx context.Context, productID string) ([]domain.EligibleItem, error) {
	return t.eligible(ctx, eligibleItemsQuery, productID)
}

func (t *txn) LockEligibleItems(ctx context.Context, productID string) ([]domain.EligibleItem, error) {
	return t.eligible(ctx, eligibleItemsQuery+` FOR UPDATE OF si`, productID)
}

func (t *txn) eligible(ctx context.Context, query string, productID string) ([]domain.EligibleItem, error) {
	rows, err := t.q.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	eligible := make([]domain.EligibleItem, 0, 8)
	for rows.Next() {
		var e domain.EligibleItem
		dest := append(itemDest(&e.ShipmentItem), &e.FIFOSequence, &e.ShipmentStatus)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		eligible = append(eligible, e)
	}
	return eligible, rows.Err()
}

func (t *txn) GetInvoiceLine(ctx context.Context, id int64) (*domain.InvoiceLine, error) {
	return scanLine(t.q.QueryRowContext(ctx, `SELECT `+lineColumns+` FROM invoice_lines WHERE id = $1`, id))
}

func (t *txn) LockInvoiceLine(ctx context.Context, id int64) (*domain.InvoiceLine, error) {
	return scanLine(t.q.QueryRowContext(ctx, `SELECT `+lineColumns+` FROM invoice_lines WHERE id = $1 FOR UPDATE`, id))
}

func (t *txn) ListInvoiceLinesByShipment(ctx context.Context, shipmentID int64) ([]domain.InvoiceLine, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+lineColumns+` FROM invoice_lines WHERE shipment_id = $1 ORDER BY id`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.InvoiceLine, 0, 32)
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *line)
	}
	return lines, rows.Err()
}

func (t *txn) CountInvoiceLinesForItem(ctx context.Context, itemID int64) (int, error) {
	var count int
	err := t.q.QueryRowContext(ctx, `SELECT count(*) FROM invoice_lines WHERE shipment_item_id = $1`, itemID).Scan(&count)
	return count, err
}

func (t *txn) ListCarryoversFrom(ctx context.Context, shipmentID int64, reason domain.CarryoverReason) ([]domain.Carryover, error) {
	return t.carryovers(ctx, `SELECT `+carryoverColumns+` FROM carryovers WHERE from_shipment_id = $1 AND reason = $2 ORDER BY id`, shipmentID, string(reason))
}

func (t *txn) ListCarryoversInto(ctx context.Context, shipmentID int64, reason domain.CarryoverReason) ([]domain.Carryover, error) {
	return t.carryovers(ctx, `SELECT `+carryoverColumns+` FROM carryovers WHERE to_shipment_id = $1 AND reason = $2 ORDER BY id`, shipmentID, string(reason))
}

func (t *txn) carryovers(ctx context.Context, query string, args ...any) ([]domain.Carryover, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Carryover, 0, 8)
	for rows.Next() {
		c, err := scanCarryover(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (t *txn) SumSupplierExpenses(ctx context.Context, shipmentID int64, kind domain.ExpenseKind) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM supplier_expenses
		WHERE shipment_id = $1 AND kind = $2
	`, shipmentID, string(kind)).Scan(&total)
	return total, err
}

