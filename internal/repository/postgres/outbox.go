package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, record *model.OutboxRecord) error {
	if record.Payload == nil {
		return fmt.Errorf("outbox payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_records (
			id, event_type, payload, occurred_at
		) VALUES ($1, $2, $3, $4)
	`
	_, err := tx.ExecContext(ctx, query,
		record.ID,
		record.EventType,
		record.Payload,
		record.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox record: %w", err)
	}
	return nil
}

// GetPending selects in occurred_at order so delivery is FIFO per
// aggregate as long as a single dispatcher drains the table. SKIP LOCKED
// only skips rows locked by a transaction still in flight; this query
// runs outside one, so concurrent dispatchers can still pick up the same
// record and publish it twice. The consumer inbox absorbs that.
func (r *outboxRepository) GetPending(ctx context.Context, limit int) ([]*model.OutboxRecord, error) {
	query := `
		SELECT id, event_type, payload, occurred_at, sent_at, last_error
		FROM outbox_records
		WHERE sent_at IS NULL
		ORDER BY occurred_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`
	var records []*model.OutboxRecord
	err := r.db.SelectContext(ctx, &records, query, limit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox records: %w", err)
	}
	return records, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	query := `
		UPDATE outbox_records
		SET sent_at = $1, last_error = NULL
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox record sent: %w", err)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `
		UPDATE outbox_records
		SET last_error = $1
		WHERE id = $2 AND sent_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox record failed: %w", err)
	}
	return nil
}
