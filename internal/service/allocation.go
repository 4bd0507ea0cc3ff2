package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/events"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

// planAllocation walks eligible items, already in consumption order, taking
// as much of each as is still needed. It fails without a partial plan when
// the items cannot cover the request.
func planAllocation(productID string, eligible []domain.EligibleItem, quantity domain.Cartons) (domain.AllocationPlan, error) {
	plan := domain.AllocationPlan{ProductID: productID, Requested: quantity}
	need := quantity
	available := domain.Cartons(0)

	for _, item := range eligible {
		available += item.RemainingQuantity
		if need == 0 || item.RemainingQuantity <= 0 {
			continue
		}
		take := min(need, item.RemainingQuantity)
		plan.Entries = append(plan.Entries, domain.AllocationEntry{
			ItemID:        item.ID,
			ShipmentID:    item.ShipmentID,
			FIFOSequence:  item.FIFOSequence,
			WeightPerUnit: item.WeightPerUnit,
			Quantity:      take,
		})
		need -= take
	}

	if need > 0 {
		return domain.AllocationPlan{}, &InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: available,
		}
	}
	return plan, nil
}

// Allocate locks the eligible stock of a product and returns the plan that
// AllocateAndCreate would apply. Nothing is written.
func (s *Service) Allocate(ctx context.Context, productID string, quantity domain.Cartons) (domain.AllocationPlan, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.AllocationPlan{}, invalidf("product is required")
	}
	if quantity <= 0 {
		return domain.AllocationPlan{}, invalidf("quantity must be positive, got %d", quantity)
	}

	var plan domain.AllocationPlan
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		eligible, err := tx.LockEligibleItems(ctx, productID)
		if err != nil {
			return fmt.Errorf("lock eligible items: %w", err)
		}
		plan, err = planAllocation(productID, eligible, quantity)
		return err
	})
	if err != nil {
		return domain.AllocationPlan{}, err
	}
	return plan, nil
}

// AllocateAndCreate consumes stock in FIFO order and writes one invoice line
// per source item, all in one transaction.
func (s *Service) AllocateAndCreate(ctx context.Context, req domain.AllocateRequest) ([]domain.InvoiceLine, error) {
	req.InvoiceID = strings.TrimSpace(req.InvoiceID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.InvoiceID == "" || req.ProductID == "" {
		return nil, invalidf("invoice and product are required")
	}
	if req.Quantity <= 0 {
		return nil, invalidf("quantity must be positive, got %d", req.Quantity)
	}
	if req.UnitPrice.IsNegative() {
		return nil, invalidf("unit price must not be negative")
	}
	if err := validateActor(req.Actor); err != nil {
		return nil, err
	}
	if err := validateAsOf(req.AsOf); err != nil {
		return nil, err
	}

	var lines []domain.InvoiceLine
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		eligible, err := tx.LockEligibleItems(ctx, req.ProductID)
		if err != nil {
			return fmt.Errorf("lock eligible items: %w", err)
		}
		plan, err := planAllocation(req.ProductID, eligible, req.Quantity)
		if err != nil {
			return err
		}

		byID := make(map[int64]*domain.ShipmentItem, len(eligible))
		for i := range eligible {
			byID[eligible[i].ID] = &eligible[i].ShipmentItem
		}

		lines = make([]domain.InvoiceLine, 0, len(plan.Entries))
		for _, entry := range plan.Entries {
			item := byID[entry.ItemID]
			total := req.UnitPrice.Mul(decimal.NewFromInt(int64(entry.Quantity))).Round(2)
			if err := item.Consume(entry.Quantity, total); err != nil {
				return err
			}
			if err := tx.UpdateItem(ctx, *item); err != nil {
				return fmt.Errorf("update item %d: %w", item.ID, err)
			}

			line, err := tx.CreateInvoiceLine(ctx, domain.InvoiceLine{
				InvoiceID:      req.InvoiceID,
				ShipmentItemID: item.ID,
				ShipmentID:     item.ShipmentID,
				ProductID:      item.ProductID,
				Quantity:       entry.Quantity,
				Weight:         entry.Quantity.Weight(item.WeightPerUnit),
				UnitPrice:      req.UnitPrice,
				Total:          total,
				WorkingDate:    dateUTC(req.AsOf),
				Status:         domain.LineActive,
				CreatedBy:      req.Actor.Username,
				CreatedAt:      s.now(),
			})
			if err != nil {
				return fmt.Errorf("create invoice line: %w", err)
			}
			lines = append(lines, *line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		s.logAudit(ctx, req.Actor, "allocation_create", domain.InvoiceLineRef(line.ID),
			fmt.Sprintf("invoice=%s,item=%d,qty=%d,total=%s", line.InvoiceID, line.ShipmentItemID, line.Quantity, line.Total))
	}
	s.publish(ctx, events.AllocationCreated, "product:"+req.ProductID, req.Actor, lines)

	return lines, nil
}

// ReverseAllocation cancels an invoice line and returns exactly its quantity
// and amount to the item it was drawn from.
func (s *Service) ReverseAllocation(ctx context.Context, req domain.ReverseRequest) (domain.InvoiceLine, error) {
	if req.InvoiceLineID <= 0 {
		return domain.InvoiceLine{}, invalidf("invoice line is required")
	}
	if err := validateActor(req.Actor); err != nil {
		return domain.InvoiceLine{}, err
	}

	var reversed domain.InvoiceLine
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		line, err := tx.LockInvoiceLine(ctx, req.InvoiceLineID)
		if err != nil {
			return fmt.Errorf("invoice line %d: %w", req.InvoiceLineID, err)
		}
		if line.Status == domain.LineReversed {
			return ErrLineAlreadyReversed
		}
		if line.ReturnedQuantity > 0 {
			return fmt.Errorf("%w: %d of %d returned", ErrLineHasReturns, line.ReturnedQuantity, line.Quantity)
		}

		shipments, err := tx.LockShipments(ctx, line.ShipmentID)
		if err != nil {
			return err
		}
		if shipments[line.ShipmentID].Status == domain.ShipmentSettled {
			return ErrSourceShipmentSettled
		}

		item, err := tx.LockItem(ctx, line.ShipmentItemID)
		if err != nil {
			return err
		}
		if err := item.Restore(line.Quantity, line.Total); err != nil {
			return err
		}
		if err := tx.UpdateItem(ctx, *item); err != nil {
			return fmt.Errorf("update item %d: %w", item.ID, err)
		}

		at := s.now()
		line.Status = domain.LineReversed
		line.ReversedAt = &at
		line.ReversedBy = req.Actor.Username
		if err := tx.UpdateInvoiceLine(ctx, *line); err != nil {
			return fmt.Errorf("update invoice line %d: %w", line.ID, err)
		}
		reversed = *line
		return nil
	})
	if err != nil {
		return domain.InvoiceLine{}, err
	}

	s.logAudit(ctx, req.Actor, "allocation_reverse", domain.InvoiceLineRef(reversed.ID),
		fmt.Sprintf("item=%d,qty=%d,total=%s", reversed.ShipmentItemID, reversed.Quantity, reversed.Total))
	s.publish(ctx, events.AllocationReversed, "product:"+reversed.ProductID, req.Actor, reversed)

	return reversed, nil
}
