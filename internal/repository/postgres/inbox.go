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

type inboxRepository struct {
	BaseRepository
}

func NewInboxRepository(base BaseRepository) repository.InboxRepository {
	return &inboxRepository{base}
}

// GetBySourceTx locks the record so two concurrent deliveries of the same
// event serialize; the loser of an insert race fails on the unique index
// and the delivery is retried, at which point it sees the winner's row.
func (r *inboxRepository) GetBySourceTx(ctx context.Context, tx *sqlx.Tx, sourceEventID uuid.UUID) (*model.InboxRecord, error) {
	query := `
		SELECT id, source_event_id, event_type, payload, received_at, processed_at
		FROM inbox_records
		WHERE source_event_id = $1
		FOR UPDATE
	`
	var record model.InboxRecord
	err := tx.GetContext(ctx, &record, query, sourceEventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox record: %w", err)
	}
	return &record, nil
}

func (r *inboxRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, record *model.InboxRecord) error {
	query := `
		INSERT INTO inbox_records (
			id, source_event_id, event_type, payload, received_at
		) VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.ExecContext(ctx, query,
		record.ID,
		record.SourceEventID,
		record.EventType,
		record.Payload,
		record.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inbox record: %w", err)
	}
	return nil
}

func (r *inboxRepository) MarkProcessedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, processedAt time.Time) error {
	query := `
		UPDATE inbox_records
		SET processed_at = $1
		WHERE id = $2 AND processed_at IS NULL
	`
	result, err := tx.ExecContext(ctx, query, processedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark inbox record processed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
