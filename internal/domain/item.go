package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrItemImbalance = errors.New("shipment item quantities out of balance")

// NewIntakeItem builds a freshly purchased stock line.
func NewIntakeItem(shipmentID int64, productID string, weightPerUnit Weight, quantity Cartons) ShipmentItem {
	return ShipmentItem{
		ShipmentID:        shipmentID,
		ProductID:         productID,
		WeightPerUnit:     weightPerUnit,
		IntakeQuantity:    quantity,
		InitialQuantity:   quantity,
		RemainingQuantity: quantity,
	}
}

// CarryoverKey identifies the line in a receiving shipment that forwarded
// stock of this item is merged into.
func (it ShipmentItem) CarryoverKey() string {
	return it.ProductID + "|" + it.WeightPerUnit.String()
}

// CheckBalance verifies the conservation law of the counters:
//
//	initial   = intake + carryover_in
//	remaining = initial - sold - carryover_out >= 0
func (it ShipmentItem) CheckBalance() error {
	if it.IntakeQuantity < 0 || it.InitialQuantity < 0 || it.SoldQuantity < 0 ||
		it.CarryoverInQuantity < 0 || it.CarryoverOutQuantity < 0 || it.RemainingQuantity < 0 {
		return fmt.Errorf("%w: item %d has a negative counter", ErrItemImbalance, it.ID)
	}
	if it.InitialQuantity != it.IntakeQuantity+it.CarryoverInQuantity {
		return fmt.Errorf("%w: item %d initial %d != intake %d + carryover in %d",
			ErrItemImbalance, it.ID, it.InitialQuantity, it.IntakeQuantity, it.CarryoverInQuantity)
	}
	if it.RemainingQuantity != it.InitialQuantity-it.SoldQuantity-it.CarryoverOutQuantity {
		return fmt.Errorf("%w: item %d remaining %d != initial %d - sold %d - carryover out %d",
			ErrItemImbalance, it.ID, it.RemainingQuantity, it.InitialQuantity, it.SoldQuantity, it.CarryoverOutQuantity)
	}
	return nil
}

// Consume records a sale of quantity cartons worth amount.
func (it *ShipmentItem) Consume(quantity Cartons, amount decimal.Decimal) error {
	if quantity <= 0 || quantity > it.RemainingQuantity {
		return fmt.Errorf("%w: item %d cannot give %d of %d remaining", ErrItemImbalance, it.ID, quantity, it.RemainingQuantity)
	}
	it.SoldQuantity += quantity
	it.RemainingQuantity -= quantity
	it.SoldAmount = it.SoldAmount.Add(amount)
	return it.CheckBalance()
}

// Restore undoes a sale previously recorded with Consume.
func (it *ShipmentItem) Restore(quantity Cartons, amount decimal.Decimal) error {
	if quantity <= 0 || quantity > it.SoldQuantity {
		return fmt.Errorf("%w: item %d cannot restore %d of %d sold", ErrItemImbalance, it.ID, quantity, it.SoldQuantity)
	}
	it.SoldQuantity -= quantity
	it.RemainingQuantity += quantity
	it.SoldAmount = it.SoldAmount.Sub(amount)
	return it.CheckBalance()
}

// ForwardOut moves the whole remainder out of the item and returns it.
func (it *ShipmentItem) ForwardOut() Cartons {
	moved := it.RemainingQuantity
	it.CarryoverOutQuantity += moved
	it.RemainingQuantity = 0
	return moved
}

// ReturnForwarded takes back stock that ForwardOut moved away.
func (it *ShipmentItem) ReturnForwarded(quantity Cartons) error {
	if quantity <= 0 || quantity > it.CarryoverOutQuantity {
		return fmt.Errorf("%w: item %d cannot take back %d of %d forwarded", ErrItemImbalance, it.ID, quantity, it.CarryoverOutQuantity)
	}
	it.CarryoverOutQuantity -= quantity
	it.RemainingQuantity += quantity
	return it.CheckBalance()
}

// ReceiveCarryover adds forwarded or returned stock to the item.
func (it *ShipmentItem) ReceiveCarryover(quantity Cartons) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: item %d cannot receive %d", ErrItemImbalance, it.ID, quantity)
	}
	it.InitialQuantity += quantity
	it.RemainingQuantity += quantity
	it.CarryoverInQuantity += quantity
	return it.CheckBalance()
}

// RemoveCarryover withdraws stock that ReceiveCarryover added. It refuses
// when the stock is no longer on hand.
func (it *ShipmentItem) RemoveCarryover(quantity Cartons) error {
	if quantity <= 0 || quantity > it.RemainingQuantity || quantity > it.CarryoverInQuantity {
		return fmt.Errorf("%w: item %d cannot give back %d (remaining %d, carried in %d)",
			ErrItemImbalance, it.ID, quantity, it.RemainingQuantity, it.CarryoverInQuantity)
	}
	it.InitialQuantity -= quantity
	it.RemainingQuantity -= quantity
	it.CarryoverInQuantity -= quantity
	return it.CheckBalance()
}

// IncomingWeight is the nominal weight of everything the item received.
func (it ShipmentItem) IncomingWeight() Weight {
	return it.InitialQuantity.Weight(it.WeightPerUnit)
}

func (it ShipmentItem) CarriedOutWeight() Weight {
	return it.CarryoverOutQuantity.Weight(it.WeightPerUnit)
}
