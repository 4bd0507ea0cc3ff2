package service

import (
	"context"
	"fmt"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/events"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

// RecordLateReturn takes back cartons of a line whose shipment is already
// settled. The cartons land in an open shipment through a late_return
// carryover; the settled figures of the source are left alone.
func (s *Service) RecordLateReturn(ctx context.Context, req domain.LateReturnRequest) (domain.Carryover, error) {
	if req.InvoiceLineID <= 0 || req.TargetShipmentID <= 0 {
		return domain.Carryover{}, invalidf("invoice line and target shipment are required")
	}
	if req.Quantity <= 0 {
		return domain.Carryover{}, invalidf("quantity must be positive, got %d", req.Quantity)
	}
	if err := validateActor(req.Actor); err != nil {
		return domain.Carryover{}, err
	}
	if err := validateAsOf(req.AsOf); err != nil {
		return domain.Carryover{}, err
	}

	var created domain.Carryover
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		line, err := tx.LockInvoiceLine(ctx, req.InvoiceLineID)
		if err != nil {
			return fmt.Errorf("invoice line %d: %w", req.InvoiceLineID, err)
		}
		if line.Status != domain.LineActive {
			return ErrLineAlreadyReversed
		}
		if line.ShipmentID == req.TargetShipmentID {
			return ErrSameShipment
		}

		shipments, err := tx.LockShipments(ctx, line.ShipmentID, req.TargetShipmentID)
		if err != nil {
			return err
		}
		if shipments[line.ShipmentID].Status != domain.ShipmentSettled {
			return ErrSourceNotSettled
		}
		if shipments[req.TargetShipmentID].Status != domain.ShipmentOpen {
			return ErrTargetNotOpen
		}
		if left := line.Quantity - line.ReturnedQuantity; req.Quantity > left {
			return fmt.Errorf("%w: %d requested, %d left on line %d", ErrReturnExceedsLine, req.Quantity, left, line.ID)
		}

		source, err := tx.LockItem(ctx, line.ShipmentItemID)
		if err != nil {
			return err
		}
		targets, err := tx.LockShipmentItems(ctx, req.TargetShipmentID)
		if err != nil {
			return err
		}
		byKey := make(map[string]*domain.ShipmentItem, len(targets))
		for i := range targets {
			if _, seen := byKey[targets[i].CarryoverKey()]; !seen {
				byKey[targets[i].CarryoverKey()] = &targets[i]
			}
		}
		dest, err := receiveInto(ctx, tx, byKey, req.TargetShipmentID, *source, req.Quantity)
		if err != nil {
			return err
		}

		c, err := tx.CreateCarryover(ctx, domain.Carryover{
			FromItemID:     source.ID,
			ToItemID:       dest.ID,
			FromShipmentID: line.ShipmentID,
			ToShipmentID:   req.TargetShipmentID,
			Quantity:       req.Quantity,
			Reason:         domain.ReasonLateReturn,
			InvoiceLineID:  line.ID,
			CreatedAt:      s.now(),
			CreatedBy:      req.Actor.Username,
		})
		if err != nil {
			return fmt.Errorf("create carryover: %w", err)
		}

		line.ReturnedQuantity += req.Quantity
		if err := tx.UpdateInvoiceLine(ctx, *line); err != nil {
			return fmt.Errorf("update invoice line %d: %w", line.ID, err)
		}
		created = *c
		return nil
	})
	if err != nil {
		return domain.Carryover{}, err
	}

	s.invalidateReport(ctx, created.ToShipmentID)
	s.logAudit(ctx, req.Actor, "late_return_record", domain.CarryoverRef(created.ID),
		fmt.Sprintf("line=%d,from_item=%d,to_item=%d,qty=%d", created.InvoiceLineID, created.FromItemID, created.ToItemID, created.Quantity))
	s.publish(ctx, events.LateReturnRecorded, fmt.Sprintf("shipment:%d", created.ToShipmentID), req.Actor, created)

	return created, nil
}
