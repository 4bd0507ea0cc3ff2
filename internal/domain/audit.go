package domain

import (
	"fmt"
	"time"
)

// EntityKind is the closed set of ledger entities an audit entry or an
// external adjustment may point at.
type EntityKind string

const (
	EntityShipment     EntityKind = "shipment"
	EntityShipmentItem EntityKind = "shipment_item"
	EntityInvoiceLine  EntityKind = "invoice_line"
	EntityCarryover    EntityKind = "carryover"
	EntitySupplier     EntityKind = "supplier"
)

func (k EntityKind) Valid() bool {
	switch k {
	case EntityShipment, EntityShipmentItem, EntityInvoiceLine, EntityCarryover, EntitySupplier:
		return true
	}
	return false
}

type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

func ShipmentRef(id int64) EntityRef {
	return EntityRef{Kind: EntityShipment, ID: fmt.Sprint(id)}
}

func ShipmentItemRef(id int64) EntityRef {
	return EntityRef{Kind: EntityShipmentItem, ID: fmt.Sprint(id)}
}

func InvoiceLineRef(id int64) EntityRef {
	return EntityRef{Kind: EntityInvoiceLine, ID: fmt.Sprint(id)}
}

func CarryoverRef(id int64) EntityRef {
	return EntityRef{Kind: EntityCarryover, ID: fmt.Sprint(id)}
}

func SupplierRef(id string) EntityRef {
	return EntityRef{Kind: EntitySupplier, ID: id}
}

func (r EntityRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	Entity        EntityRef `json:"entity"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
