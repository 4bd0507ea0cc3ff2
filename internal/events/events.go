// Package events publishes ledger changes for downstream collaborators such
// as notification delivery. Publishing happens after commit and never
// decides the outcome of a ledger operation.
package events

import (
	"context"
	"time"
)

const (
	AllocationCreated  = "allocation.created"
	AllocationReversed = "allocation.reversed"
	ShipmentSettled    = "shipment.settled"
	ShipmentUnsettled  = "shipment.unsettled"
	LateReturnRecorded = "late_return.recorded"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Event) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
