// Package outbox writes pending outgoing events. The writer is a pure
// durability boundary: no network I/O happens here, which is what
// decouples "decided to notify" from "actually notified".
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/repository"
)

type Writer struct {
	repo repository.OutboxRepository
}

func NewWriter(repo repository.OutboxRepository) *Writer {
	return &Writer{repo: repo}
}

// AppendTx records an outgoing event inside the caller's transaction.
// If the surrounding transaction commits the record is durably pending;
// if it aborts, no record exists. Callers must only invoke this from a
// transaction that also performs the business mutation the event
// reports.
func (w *Writer) AppendTx(ctx context.Context, tx *sqlx.Tx, eventType string, payload interface{}) (*model.OutboxRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	record := &model.OutboxRecord{
		ID:         uuid.New(),
		EventType:  eventType,
		Payload:    body,
		OccurredAt: time.Now().UTC(),
	}

	if err := w.repo.CreateTx(ctx, tx, record); err != nil {
		return nil, err
	}
	return record, nil
}
