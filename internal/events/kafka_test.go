package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	skafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []skafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...skafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedJSON(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisherWithWriter(w)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), Event{
		ID:         "evt-1",
		Type:       ShipmentSettled,
		Key:        "shipment:4",
		Actor:      "acc",
		OccurredAt: at,
		Data:       map[string]any{"shipment_id": 4},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "shipment:4", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, ShipmentSettled, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "evt-1", decoded.ID)
	assert.Equal(t, ShipmentSettled, decoded.Type)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisherWithWriter(&recordingWriter{err: boom})

	err := p.Publish(context.Background(), Event{Type: AllocationCreated, Key: "product:tomato"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
