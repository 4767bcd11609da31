package messaging

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Event is the envelope carried on the bus. ID is the producer's outbox
// record id; consumers use it as their deduplication key.
type Event struct {
	ID      uuid.UUID       `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler processes one delivery. Returning nil acknowledges the event;
// returning an error leaves it unacknowledged for redelivery. Handlers
// must commit their local transaction before returning nil;
// acknowledging first risks losing the event on crash.
type Handler func(ctx context.Context, evt Event) error

// Broker is an at-least-once pub/sub channel. Delivery may duplicate
// and reorder; exactly-once is explicitly not assumed, the inbox layer
// absorbs duplicates. Subscribe registers a handler for a consumer
// group and returns; consumption runs until ctx is cancelled.
type Broker interface {
	Publish(ctx context.Context, topic string, evt Event) error
	Subscribe(ctx context.Context, topic, group string, h Handler) error
	Close() error
}
