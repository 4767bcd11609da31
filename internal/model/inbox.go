package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InboxRecord tracks a consumed bus event. SourceEventID is the sender's
// event id and is unique: at most one record exists per source event.
// ProcessedAt is set exactly once, in the same transaction as the
// business effect it guards; a record with a nil ProcessedAt marks a
// delivery whose processing never committed and may be retried.
type InboxRecord struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	SourceEventID uuid.UUID       `db:"source_event_id" json:"source_event_id"`
	EventType     string          `db:"event_type" json:"event_type"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	ReceivedAt    time.Time       `db:"received_at" json:"received_at"`
	ProcessedAt   *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}
