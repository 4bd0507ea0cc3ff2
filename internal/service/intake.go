package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/xid"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, invalidf("supplier name is required")
	}
	if err := validateActor(req.Actor); err != nil {
		return domain.Supplier{}, err
	}

	var created *domain.Supplier
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		var err error
		created, err = tx.CreateSupplier(ctx, domain.Supplier{
			ID:             xid.New("sup"),
			Name:           req.Name,
			OpeningBalance: req.OpeningBalance.Round(2),
			CreatedAt:      s.now(),
		})
		return err
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, req.Actor, "supplier_create", domain.SupplierRef(created.ID),
		fmt.Sprintf("name=%s,opening_balance=%s", created.Name, created.OpeningBalance))
	return *created, nil
}

// CreateShipment opens a new shipment. Its place in the consumption order is
// assigned by the store and never changes.
func (s *Service) CreateShipment(ctx context.Context, req domain.ShipmentCreateRequest) (domain.Shipment, error) {
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	if req.SupplierID == "" {
		return domain.Shipment{}, invalidf("supplier is required")
	}
	if req.ArrivalDate.IsZero() {
		return domain.Shipment{}, invalidf("arrival date is required")
	}
	if err := validateActor(req.Actor); err != nil {
		return domain.Shipment{}, err
	}

	var created *domain.Shipment
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetSupplier(ctx, req.SupplierID); err != nil {
			return fmt.Errorf("supplier %s: %w", req.SupplierID, err)
		}
		var err error
		created, err = tx.CreateShipment(ctx, domain.Shipment{
			SupplierID:  req.SupplierID,
			ArrivalDate: dateUTC(req.ArrivalDate),
			Status:      domain.ShipmentOpen,
			CreatedAt:   s.now(),
		})
		return err
	})
	if err != nil {
		return domain.Shipment{}, err
	}

	s.logAudit(ctx, req.Actor, "shipment_create", domain.ShipmentRef(created.ID),
		fmt.Sprintf("supplier=%s,fifo_sequence=%d", created.SupplierID, created.FIFOSequence))
	return *created, nil
}

// AddShipmentItem records freshly purchased cartons on an open shipment.
func (s *Service) AddShipmentItem(ctx context.Context, req domain.ShipmentItemCreateRequest) (domain.ShipmentItem, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ShipmentID <= 0 || req.ProductID == "" {
		return domain.ShipmentItem{}, invalidf("shipment and product are required")
	}
	if req.Quantity <= 0 {
		return domain.ShipmentItem{}, invalidf("quantity must be positive, got %d", req.Quantity)
	}
	if !req.WeightPerUnit.IsPositive() {
		return domain.ShipmentItem{}, invalidf("weight per unit must be positive")
	}
	if err := validateActor(req.Actor); err != nil {
		return domain.ShipmentItem{}, err
	}

	var created *domain.ShipmentItem
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		shipments, err := tx.LockShipments(ctx, req.ShipmentID)
		if err != nil {
			return err
		}
		if shipments[req.ShipmentID].Status != domain.ShipmentOpen {
			return ErrShipmentNotOpen
		}
		item := domain.NewIntakeItem(req.ShipmentID, req.ProductID, req.WeightPerUnit, req.Quantity)
		item.SoldAmount = decimal.Zero
		created, err = tx.CreateItem(ctx, item)
		return err
	})
	if err != nil {
		return domain.ShipmentItem{}, err
	}

	s.logAudit(ctx, req.Actor, "shipment_item_create", domain.ShipmentItemRef(created.ID),
		fmt.Sprintf("shipment=%d,product=%s,qty=%d,weight_per_unit=%s", created.ShipmentID, created.ProductID, created.IntakeQuantity, created.WeightPerUnit))
	return *created, nil
}

// CloseShipment stops further intake. Its stock stays available to sales
// until settlement.
func (s *Service) CloseShipment(ctx context.Context, shipmentID int64, actor domain.Actor) (domain.Shipment, error) {
	if shipmentID <= 0 {
		return domain.Shipment{}, invalidf("shipment is required")
	}
	if err := validateActor(actor); err != nil {
		return domain.Shipment{}, err
	}

	var closed domain.Shipment
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		shipments, err := tx.LockShipments(ctx, shipmentID)
		if err != nil {
			return err
		}
		closed = shipments[shipmentID]
		if closed.Status != domain.ShipmentOpen {
			return ErrShipmentNotOpen
		}
		closed.Status = domain.ShipmentClosed
		return tx.UpdateShipment(ctx, closed)
	})
	if err != nil {
		return domain.Shipment{}, err
	}

	s.logAudit(ctx, actor, "shipment_close", domain.ShipmentRef(closed.ID), "")
	return closed, nil
}

// RecordWastage adds spoiled weight to an item. Settled shipments are
// frozen.
func (s *Service) RecordWastage(ctx context.Context, req domain.WastageRequest) (domain.ShipmentItem, error) {
	if req.ShipmentItemID <= 0 {
		return domain.ShipmentItem{}, invalidf("shipment item is required")
	}
	if !req.Weight.IsPositive() {
		return domain.ShipmentItem{}, invalidf("wastage weight must be positive")
	}
	if err := validateActor(req.Actor); err != nil {
		return domain.ShipmentItem{}, err
	}

	var updated domain.ShipmentItem
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetShipmentItem(ctx, req.ShipmentItemID)
		if err != nil {
			return err
		}
		shipments, err := tx.LockShipments(ctx, current.ShipmentID)
		if err != nil {
			return err
		}
		if shipments[current.ShipmentID].Status == domain.ShipmentSettled {
			return ErrAlreadySettled
		}
		item, err := tx.LockItem(ctx, req.ShipmentItemID)
		if err != nil {
			return err
		}
		item.WastageWeight = item.WastageWeight.Add(req.Weight)
		if err := tx.UpdateItem(ctx, *item); err != nil {
			return fmt.Errorf("update item %d: %w", item.ID, err)
		}
		updated = *item
		return nil
	})
	if err != nil {
		return domain.ShipmentItem{}, err
	}

	s.logAudit(ctx, req.Actor, "wastage_record", domain.ShipmentItemRef(updated.ID),
		fmt.Sprintf("weight=%s,total=%s", req.Weight, updated.WastageWeight))
	return updated, nil
}

// PostSupplierExpense books an expense against a shipment. Only expenses of
// kind supplier reduce the supplier's balance at settlement.
func (s *Service) PostSupplierExpense(ctx context.Context, req domain.SupplierExpenseRequest) (domain.SupplierExpense, error) {
	if req.ShipmentID <= 0 {
		return domain.SupplierExpense{}, invalidf("shipment is required")
	}
	if req.Kind != domain.ExpenseSupplier && req.Kind != domain.ExpenseCompany {
		return domain.SupplierExpense{}, invalidf("unknown expense kind %q", req.Kind)
	}
	if !req.Amount.IsPositive() {
		return domain.SupplierExpense{}, invalidf("amount must be positive")
	}
	if err := validateActor(req.Actor); err != nil {
		return domain.SupplierExpense{}, err
	}
	if err := validateAsOf(req.AsOf); err != nil {
		return domain.SupplierExpense{}, err
	}

	var created *domain.SupplierExpense
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		shipments, err := tx.LockShipments(ctx, req.ShipmentID)
		if err != nil {
			return err
		}
		shipment := shipments[req.ShipmentID]
		if shipment.Status == domain.ShipmentSettled {
			return ErrAlreadySettled
		}
		created, err = tx.CreateSupplierExpense(ctx, domain.SupplierExpense{
			SupplierID: shipment.SupplierID,
			ShipmentID: shipment.ID,
			Kind:       req.Kind,
			Amount:     req.Amount.Round(2),
			PostedOn:   dateUTC(req.AsOf),
			CreatedBy:  req.Actor.Username,
		})
		return err
	})
	if err != nil {
		return domain.SupplierExpense{}, err
	}

	s.logAudit(ctx, req.Actor, "supplier_expense_post", domain.ShipmentRef(created.ShipmentID),
		fmt.Sprintf("kind=%s,amount=%s", created.Kind, created.Amount))
	return *created, nil
}

// PostSupplierPayment records money paid to a supplier. The next settlement
// of that supplier dated on or after the payment consumes it.
func (s *Service) PostSupplierPayment(ctx context.Context, req domain.SupplierPaymentRequest) (domain.SupplierPayment, error) {
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	if req.SupplierID == "" {
		return domain.SupplierPayment{}, invalidf("supplier is required")
	}
	if !req.Amount.IsPositive() {
		return domain.SupplierPayment{}, invalidf("amount must be positive")
	}
	if err := validateActor(req.Actor); err != nil {
		return domain.SupplierPayment{}, err
	}
	if err := validateAsOf(req.AsOf); err != nil {
		return domain.SupplierPayment{}, err
	}

	var created *domain.SupplierPayment
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockSupplier(ctx, req.SupplierID); err != nil {
			return fmt.Errorf("supplier %s: %w", req.SupplierID, err)
		}
		var err error
		created, err = tx.CreateSupplierPayment(ctx, domain.SupplierPayment{
			SupplierID: req.SupplierID,
			Amount:     req.Amount.Round(2),
			PaidOn:     dateUTC(req.AsOf),
			CreatedBy:  req.Actor.Username,
		})
		return err
	})
	if err != nil {
		return domain.SupplierPayment{}, err
	}

	s.logAudit(ctx, req.Actor, "supplier_payment_post", domain.SupplierRef(created.SupplierID),
		fmt.Sprintf("amount=%s,paid_on=%s", created.Amount, created.PaidOn.Format("2006-01-02")))
	return *created, nil
}

// Shipment returns a shipment and its items from one snapshot.
func (s *Service) Shipment(ctx context.Context, shipmentID int64) (domain.Shipment, []domain.ShipmentItem, error) {
	var (
		shipment *domain.Shipment
		items    []domain.ShipmentItem
	)
	err := s.repo.View(ctx, func(r store.Reader) error {
		var err error
		shipment, err = r.GetShipment(ctx, shipmentID)
		if err != nil {
			return fmt.Errorf("shipment %d: %w", shipmentID, err)
		}
		items, err = r.ListShipmentItems(ctx, shipmentID)
		return err
	})
	if err != nil {
		return domain.Shipment{}, nil, err
	}
	return *shipment, items, nil
}
