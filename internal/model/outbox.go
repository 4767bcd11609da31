package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxRecord is a pending outgoing event. It is inserted in the same
// local transaction as the business mutation that produced it, and only
// the dispatcher ever mutates it afterwards (SentAt / LastError).
// Records are never deleted; they double as an audit trail.
type OutboxRecord struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	EventType  string          `db:"event_type" json:"event_type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	OccurredAt time.Time       `db:"occurred_at" json:"occurred_at"`
	SentAt     *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	LastError  *string         `db:"last_error" json:"last_error,omitempty"`
}

// Pending reports whether the record still awaits a successful publish.
func (r *OutboxRecord) Pending() bool {
	return r.SentAt == nil
}
