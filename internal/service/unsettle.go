package service

import (
	"context"
	"fmt"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/events"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

// Unsettle reverses a settlement: forwarded stock comes back from the
// receiving shipment, the supplier payments it consumed are released and the
// shipment returns to closed. It is refused once any of the forwarded stock
// has been used, once a late return has been taken against its sales, and
// while a later shipment of the same supplier is settled, because that
// shipment's opening balance was taken from this one.
func (s *Service) Unsettle(ctx context.Context, req domain.UnsettleRequest) (domain.Shipment, error) {
	if req.ShipmentID <= 0 {
		return domain.Shipment{}, invalidf("shipment is required")
	}
	if err := validateActor(req.Actor); err != nil {
		return domain.Shipment{}, err
	}

	supplierID, err := s.supplierOf(ctx, req.ShipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}

	var (
		restored domain.Shipment
		removed  []domain.Carryover
	)
	err = s.withSupplierGuard(ctx, supplierID, func() error {
		return s.repo.WithTx(ctx, func(tx store.Tx) error {
			var err error
			restored, removed, err = s.unsettleTx(ctx, tx, supplierID, req)
			return err
		})
	})
	if err != nil {
		return domain.Shipment{}, err
	}

	s.invalidateReport(ctx, restored.ID)
	s.logAudit(ctx, req.Actor, "shipment_unsettle", domain.ShipmentRef(restored.ID),
		fmt.Sprintf("carryovers_removed=%d", len(removed)))
	for _, c := range removed {
		s.logAudit(ctx, req.Actor, "carryover_delete", domain.CarryoverRef(c.ID),
			fmt.Sprintf("from_item=%d,to_item=%d,qty=%d", c.FromItemID, c.ToItemID, c.Quantity))
	}
	s.publish(ctx, events.ShipmentUnsettled, fmt.Sprintf("supplier:%s", restored.SupplierID), req.Actor, restored)

	return restored, nil
}

func (s *Service) unsettleTx(ctx context.Context, tx store.Tx, supplierID string, req domain.UnsettleRequest) (domain.Shipment, []domain.Carryover, error) {
	if _, err := tx.LockSupplier(ctx, supplierID); err != nil {
		return domain.Shipment{}, nil, fmt.Errorf("supplier %s: %w", supplierID, err)
	}

	shipments, err := tx.LockShipments(ctx, req.ShipmentID)
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	shipment := shipments[req.ShipmentID]
	if shipment.SupplierID != supplierID {
		return domain.Shipment{}, nil, fmt.Errorf("shipment %d: %w", shipment.ID, store.ErrInvalidTransaction)
	}
	if shipment.Status != domain.ShipmentSettled {
		return domain.Shipment{}, nil, ErrNotSettled
	}
	later, err := tx.LaterSettledShipmentExists(ctx, shipment.SupplierID, shipment.FIFOSequence)
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	if later {
		return domain.Shipment{}, nil, ErrLaterShipmentSettled
	}
	returned, err := tx.ListCarryoversFrom(ctx, shipment.ID, domain.ReasonLateReturn)
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	if len(returned) > 0 {
		return domain.Shipment{}, nil, fmt.Errorf("%w: %d recorded", ErrLateReturnsRecorded, len(returned))
	}

	carryovers, err := tx.ListCarryoversFrom(ctx, shipment.ID, domain.ReasonEndOfShipment)
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	if len(carryovers) > 0 {
		destIDs := make([]int64, 0, len(carryovers))
		for _, c := range carryovers {
			destIDs = append(destIDs, c.ToShipmentID)
		}
		if _, err := tx.LockShipments(ctx, destIDs...); err != nil {
			return domain.Shipment{}, nil, err
		}
	}

	items, err := tx.LockShipmentItems(ctx, shipment.ID)
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	sources := make(map[int64]*domain.ShipmentItem, len(items))
	for i := range items {
		sources[items[i].ID] = &items[i]
	}

	for _, c := range carryovers {
		dest, err := tx.LockItem(ctx, c.ToItemID)
		if err != nil {
			return domain.Shipment{}, nil, err
		}
		if dest.RemainingQuantity < c.Quantity {
			return domain.Shipment{}, nil, &ForwardedStockConsumedError{
				CarryoverID: c.ID,
				ToItemID:    dest.ID,
				Forwarded:   c.Quantity,
				Remaining:   dest.RemainingQuantity,
			}
		}

		source, ok := sources[c.FromItemID]
		if !ok {
			return domain.Shipment{}, nil, fmt.Errorf("carryover %d source item %d: %w", c.ID, c.FromItemID, store.ErrNotFound)
		}
		if err := source.ReturnForwarded(c.Quantity); err != nil {
			return domain.Shipment{}, nil, err
		}
		if err := tx.UpdateItem(ctx, *source); err != nil {
			return domain.Shipment{}, nil, fmt.Errorf("update item %d: %w", source.ID, err)
		}
		if err := dest.RemoveCarryover(c.Quantity); err != nil {
			return domain.Shipment{}, nil, err
		}
		if err := tx.DeleteCarryover(ctx, c.ID); err != nil {
			return domain.Shipment{}, nil, fmt.Errorf("delete carryover %d: %w", c.ID, err)
		}
		if err := s.dropOrUpdate(ctx, tx, *dest); err != nil {
			return domain.Shipment{}, nil, err
		}
	}

	if err := tx.ReleaseSupplierPayments(ctx, shipment.ID); err != nil {
		return domain.Shipment{}, nil, fmt.Errorf("release payments of shipment %d: %w", shipment.ID, err)
	}
	shipment.ClearSettlement()
	if err := tx.UpdateShipment(ctx, shipment); err != nil {
		return domain.Shipment{}, nil, fmt.Errorf("update shipment %d: %w", shipment.ID, err)
	}
	return shipment, carryovers, nil
}

// dropOrUpdate deletes a receiving line that was created only to hold the
// forwarded stock, and saves it otherwise.
func (s *Service) dropOrUpdate(ctx context.Context, tx store.Tx, dest domain.ShipmentItem) error {
	if dest.InitialQuantity == 0 {
		lines, err := tx.CountInvoiceLinesForItem(ctx, dest.ID)
		if err != nil {
			return err
		}
		if lines == 0 {
			if err := tx.DeleteItem(ctx, dest.ID); err != nil {
				return fmt.Errorf("delete item %d: %w", dest.ID, err)
			}
			return nil
		}
	}
	if err := tx.UpdateItem(ctx, dest); err != nil {
		return fmt.Errorf("update item %d: %w", dest.ID, err)
	}
	return nil
}
