package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/events"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

// balanceInputs are the figures the supplier balance formula is built from.
type balanceInputs struct {
	TotalSales       decimal.Decimal
	LateReturnsValue decimal.Decimal
	CommissionRate   decimal.Decimal
	Expenses         decimal.Decimal
	PreviousBalance  decimal.Decimal
	Payments         decimal.Decimal
}

type balanceResult struct {
	NetSales     decimal.Decimal
	Commission   decimal.Decimal
	FinalBalance decimal.Decimal
}

// computeBalance applies
//
//	net        = sales - late returns
//	commission = round2(net * rate)
//	final      = net - commission - expenses + previous - payments
func computeBalance(in balanceInputs) balanceResult {
	net := in.TotalSales.Sub(in.LateReturnsValue)
	commission := net.Mul(in.CommissionRate).Round(2)
	final := net.Sub(commission).Sub(in.Expenses).Add(in.PreviousBalance).Sub(in.Payments)
	return balanceResult{NetSales: net, Commission: commission, FinalBalance: final}
}

type itemTotals struct {
	Sales        decimal.Decimal
	SoldQuantity domain.Cartons
	Wastage      domain.Weight
	CarryoverOut domain.Cartons
}

func aggregateItems(items []domain.ShipmentItem) itemTotals {
	totals := itemTotals{Sales: decimal.Zero}
	for _, item := range items {
		totals.Sales = totals.Sales.Add(item.SoldAmount)
		totals.SoldQuantity += item.SoldQuantity
		totals.Wastage = totals.Wastage.Add(item.WastageWeight)
		totals.CarryoverOut += item.CarryoverOutQuantity
	}
	return totals
}

// Settle closes the books of a shipment: its remaining stock moves into the
// open shipment next, totals are frozen and the supplier balance chain is
// extended by one link.
func (s *Service) Settle(ctx context.Context, req domain.SettleRequest) (domain.Shipment, error) {
	if req.ShipmentID <= 0 || req.NextShipmentID <= 0 {
		return domain.Shipment{}, invalidf("shipment and next shipment are required")
	}
	if req.ShipmentID == req.NextShipmentID {
		return domain.Shipment{}, ErrSameShipment
	}
	if err := validateActor(req.Actor); err != nil {
		return domain.Shipment{}, err
	}
	if err := validateAsOf(req.AsOf); err != nil {
		return domain.Shipment{}, err
	}

	supplierID, err := s.supplierOf(ctx, req.ShipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}

	var (
		settled    domain.Shipment
		carryovers []domain.Carryover
	)
	err = s.withSupplierGuard(ctx, supplierID, func() error {
		return s.repo.WithTx(ctx, func(tx store.Tx) error {
			var err error
			settled, carryovers, err = s.settleTx(ctx, tx, supplierID, req)
			return err
		})
	})
	if err != nil {
		return domain.Shipment{}, err
	}

	s.invalidateReport(ctx, settled.ID)
	s.logAudit(ctx, req.Actor, "shipment_settle", domain.ShipmentRef(settled.ID),
		fmt.Sprintf("next=%d,carryovers=%d,sales=%s,final_balance=%s", req.NextShipmentID, len(carryovers), settled.TotalSales, settled.FinalSupplierBalance))
	for _, c := range carryovers {
		s.logAudit(ctx, req.Actor, "carryover_create", domain.CarryoverRef(c.ID),
			fmt.Sprintf("from_item=%d,to_item=%d,qty=%d,reason=%s", c.FromItemID, c.ToItemID, c.Quantity, c.Reason))
	}
	s.publish(ctx, events.ShipmentSettled, fmt.Sprintf("supplier:%s", settled.SupplierID), req.Actor, settled)

	return settled, nil
}

// settleTx locks the supplier row before anything else; the ordering checks
// and the previous balance are only read under it.
func (s *Service) settleTx(ctx context.Context, tx store.Tx, supplierID string, req domain.SettleRequest) (domain.Shipment, []domain.Carryover, error) {
	supplier, err := tx.LockSupplier(ctx, supplierID)
	if err != nil {
		return domain.Shipment{}, nil, fmt.Errorf("supplier %s: %w", supplierID, err)
	}

	shipments, err := tx.LockShipments(ctx, req.ShipmentID, req.NextShipmentID)
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	shipment := shipments[req.ShipmentID]
	next := shipments[req.NextShipmentID]
	if shipment.SupplierID != supplier.ID {
		return domain.Shipment{}, nil, fmt.Errorf("shipment %d: %w", shipment.ID, store.ErrInvalidTransaction)
	}

	if shipment.Status == domain.ShipmentSettled {
		return domain.Shipment{}, nil, ErrAlreadySettled
	}
	if next.Status != domain.ShipmentOpen {
		return domain.Shipment{}, nil, ErrTargetNotOpen
	}
	later, err := tx.LaterSettledShipmentExists(ctx, shipment.SupplierID, shipment.FIFOSequence)
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	if later {
		return domain.Shipment{}, nil, ErrSettlementOutOfOrder
	}

	items, err := tx.LockShipmentItems(ctx, shipment.ID)
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	targets, err := tx.LockShipmentItems(ctx, next.ID)
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	byKey := make(map[string]*domain.ShipmentItem, len(targets))
	for i := range targets {
		if _, seen := byKey[targets[i].CarryoverKey()]; !seen {
			byKey[targets[i].CarryoverKey()] = &targets[i]
		}
	}

	now := s.now()
	carryovers := make([]domain.Carryover, 0, len(items))
	for i := range items {
		item := &items[i]
		if item.RemainingQuantity <= 0 {
			continue
		}
		moved := item.ForwardOut()
		if err := item.CheckBalance(); err != nil {
			return domain.Shipment{}, nil, err
		}
		if err := tx.UpdateItem(ctx, *item); err != nil {
			return domain.Shipment{}, nil, fmt.Errorf("update item %d: %w", item.ID, err)
		}

		dest, err := receiveInto(ctx, tx, byKey, next.ID, *item, moved)
		if err != nil {
			return domain.Shipment{}, nil, err
		}

		c, err := tx.CreateCarryover(ctx, domain.Carryover{
			FromItemID:     item.ID,
			ToItemID:       dest.ID,
			FromShipmentID: shipment.ID,
			ToShipmentID:   next.ID,
			Quantity:       moved,
			Reason:         domain.ReasonEndOfShipment,
			CreatedAt:      now,
			CreatedBy:      req.Actor.Username,
		})
		if err != nil {
			return domain.Shipment{}, nil, fmt.Errorf("create carryover: %w", err)
		}
		carryovers = append(carryovers, *c)
	}

	totals := aggregateItems(items)
	expenses, err := tx.SumSupplierExpenses(ctx, shipment.ID, domain.ExpenseSupplier)
	if err != nil {
		return domain.Shipment{}, nil, err
	}

	previousBalance := supplier.OpeningBalance
	previous, err := tx.PreviousSettledShipment(ctx, supplier.ID, shipment.FIFOSequence)
	switch {
	case err == nil:
		previousBalance = previous.FinalSupplierBalance
	case !errors.Is(err, store.ErrNotFound):
		return domain.Shipment{}, nil, err
	}

	payments, err := tx.ConsumeSupplierPayments(ctx, supplier.ID, req.AsOf, shipment.ID)
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	lateReturns, err := tx.ListCarryoversInto(ctx, shipment.ID, domain.ReasonLateReturn)
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	lateValue, err := s.lateReturns.Value(ctx, tx, shipment, lateReturns)
	if err != nil {
		return domain.Shipment{}, nil, fmt.Errorf("value late returns: %w", err)
	}

	result := computeBalance(balanceInputs{
		TotalSales:       totals.Sales,
		LateReturnsValue: lateValue,
		CommissionRate:   s.commissionRate,
		Expenses:         expenses,
		PreviousBalance:  previousBalance,
		Payments:         payments,
	})

	settledOn := dateUTC(req.AsOf)
	shipment.Status = domain.ShipmentSettled
	shipment.TotalSales = totals.Sales
	shipment.TotalSoldQuantity = totals.SoldQuantity
	shipment.TotalWastage = totals.Wastage
	shipment.TotalCarryoverOut = totals.CarryoverOut
	shipment.TotalSupplierExpenses = expenses
	shipment.SupplierPayments = payments
	shipment.LateReturnsValue = lateValue
	shipment.CommissionRate = s.commissionRate
	shipment.Commission = result.Commission
	shipment.NetSales = result.NetSales
	shipment.PreviousSupplierBalance = previousBalance
	shipment.FinalSupplierBalance = result.FinalBalance
	shipment.SettledAt = &now
	shipment.SettledOn = &settledOn
	shipment.SettledBy = req.Actor.Username

	if err := tx.UpdateShipment(ctx, shipment); err != nil {
		return domain.Shipment{}, nil, fmt.Errorf("update shipment %d: %w", shipment.ID, err)
	}
	return shipment, carryovers, nil
}

// receiveInto adds moved cartons of source's product and unit weight to the
// matching line of the receiving shipment, creating the line if needed.
func receiveInto(ctx context.Context, tx store.Tx, byKey map[string]*domain.ShipmentItem, shipmentID int64, source domain.ShipmentItem, moved domain.Cartons) (*domain.ShipmentItem, error) {
	if dest, ok := byKey[source.CarryoverKey()]; ok {
		if err := dest.ReceiveCarryover(moved); err != nil {
			return nil, err
		}
		if err := tx.UpdateItem(ctx, *dest); err != nil {
			return nil, fmt.Errorf("update item %d: %w", dest.ID, err)
		}
		return dest, nil
	}

	fresh := domain.ShipmentItem{
		ShipmentID:    shipmentID,
		ProductID:     source.ProductID,
		WeightPerUnit: source.WeightPerUnit,
		SoldAmount:    decimal.Zero,
	}
	if err := fresh.ReceiveCarryover(moved); err != nil {
		return nil, err
	}
	created, err := tx.CreateItem(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("create carryover item: %w", err)
	}
	byKey[source.CarryoverKey()] = created
	return created, nil
}

func (s *Service) supplierOf(ctx context.Context, shipmentID int64) (string, error) {
	var supplierID string
	err := s.repo.View(ctx, func(r store.Reader) error {
		shipment, err := r.GetShipment(ctx, shipmentID)
		if err != nil {
			return fmt.Errorf("shipment %d: %w", shipmentID, err)
		}
		supplierID = shipment.SupplierID
		return nil
	})
	return supplierID, err
}
