package service

import (
	"errors"
	"fmt"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

// Validation failures wrap ErrInvalidRequest and are raised before any lock
// is taken.
var ErrInvalidRequest = fmt.Errorf("invalid request: %w", store.ErrInvalidTransaction)

// State preconditions.
var (
	ErrAlreadySettled         = errors.New("shipment is already settled")
	ErrTargetNotOpen          = errors.New("target shipment is not open")
	ErrSameShipment           = errors.New("shipment cannot be settled into itself")
	ErrNotSettled             = errors.New("shipment is not settled")
	ErrSettlementOutOfOrder   = errors.New("a later shipment of this supplier is already settled")
	ErrLaterShipmentSettled   = errors.New("a later shipment of this supplier is settled; unsettle it first")
	ErrLineAlreadyReversed    = errors.New("invoice line is already reversed")
	ErrSourceShipmentSettled  = errors.New("source shipment is settled; record a late return instead")
	ErrSourceNotSettled       = errors.New("source shipment is not settled; reverse the line instead")
	ErrShipmentNotOpen        = errors.New("shipment is not open")
	ErrReturnExceedsLine      = errors.New("return quantity exceeds what is left on the line")
	ErrLateReturnsRecorded    = errors.New("late returns were taken against this shipment's sales")
	ErrLineHasReturns         = errors.New("invoice line has late returns and cannot be reversed")
	ErrForwardedStockConsumed = errors.New("forwarded stock has already been consumed")
)

// InsufficientStockError reports the shortfall of an allocation.
type InsufficientStockError struct {
	ProductID string         `json:"product_id"`
	Requested domain.Cartons `json:"requested"`
	Available domain.Cartons `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == store.ErrInsufficientStock
}

// ForwardedStockConsumedError blocks an unsettlement whose forwarded stock
// is no longer fully on hand in the receiving shipment.
type ForwardedStockConsumedError struct {
	CarryoverID int64          `json:"carryover_id"`
	ToItemID    int64          `json:"to_item_id"`
	Forwarded   domain.Cartons `json:"forwarded"`
	Remaining   domain.Cartons `json:"remaining"`
}

func (e *ForwardedStockConsumedError) Error() string {
	return fmt.Sprintf("forwarded stock already consumed: carryover %d moved %d into item %d, only %d remain",
		e.CarryoverID, e.Forwarded, e.ToItemID, e.Remaining)
}

func (e *ForwardedStockConsumedError) Is(target error) bool {
	return target == ErrForwardedStockConsumed
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
