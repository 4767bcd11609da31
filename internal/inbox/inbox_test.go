package inbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/repository"
	"github.com/jwalitptl/orderpay/internal/repository/inmem"
	"github.com/jwalitptl/orderpay/pkg/logger"
	"github.com/jwalitptl/orderpay/pkg/metrics"
)

func newTestDeduplicator(db *inmem.DB) (*Deduplicator, repository.InboxRepository) {
	repo := inmem.NewInboxRepository(db)
	d := NewDeduplicator(db, repo, time.Minute, logger.NewNop(), metrics.New(prometheus.NewRegistry(), "test"))
	return d, repo
}

func inboxRecord(t *testing.T, db *inmem.DB, repo repository.InboxRepository, sourceEventID uuid.UUID) *model.InboxRecord {
	t.Helper()
	var record *model.InboxRecord
	err := db.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		var err error
		record, err = repo.GetBySourceTx(context.Background(), tx, sourceEventID)
		return err
	})
	require.NoError(t, err)
	return record
}

func TestDeduplicator_FirstDeliveryRunsHandler(t *testing.T) {
	ctx := context.Background()
	db := inmem.New()
	d, repo := newTestDeduplicator(db)

	sourceEventID := uuid.New()
	calls := 0
	err := d.Process(ctx, sourceEventID, "TestEvent", []byte(`{"k":"v"}`), func(tx *sqlx.Tx, record *model.InboxRecord) error {
		calls++
		assert.Equal(t, sourceEventID, record.SourceEventID)
		assert.Equal(t, "TestEvent", record.EventType)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	record := inboxRecord(t, db, repo, sourceEventID)
	assert.NotNil(t, record.ProcessedAt)
}

func TestDeduplicator_DuplicateSkipsHandler(t *testing.T) {
	ctx := context.Background()
	db := inmem.New()
	d, _ := newTestDeduplicator(db)

	sourceEventID := uuid.New()
	calls := 0
	fn := func(tx *sqlx.Tx, record *model.InboxRecord) error {
		calls++
		return nil
	}

	require.NoError(t, d.Process(ctx, sourceEventID, "TestEvent", []byte(`{}`), fn))
	require.NoError(t, d.Process(ctx, sourceEventID, "TestEvent", []byte(`{}`), fn))
	assert.Equal(t, 1, calls)
}

func TestDeduplicator_DedupSurvivesCacheLoss(t *testing.T) {
	// A restarted consumer has an empty seen cache; the ledger alone must
	// still reject the duplicate.
	ctx := context.Background()
	db := inmem.New()
	first, _ := newTestDeduplicator(db)
	restarted, _ := newTestDeduplicator(db)

	sourceEventID := uuid.New()
	calls := 0
	fn := func(tx *sqlx.Tx, record *model.InboxRecord) error {
		calls++
		return nil
	}

	require.NoError(t, first.Process(ctx, sourceEventID, "TestEvent", []byte(`{}`), fn))
	require.NoError(t, restarted.Process(ctx, sourceEventID, "TestEvent", []byte(`{}`), fn))
	assert.Equal(t, 1, calls)
}

func TestDeduplicator_HandlerErrorLeavesRecordRetryable(t *testing.T) {
	ctx := context.Background()
	db := inmem.New()
	d, repo := newTestDeduplicator(db)

	sourceEventID := uuid.New()
	err := d.Process(ctx, sourceEventID, "TestEvent", []byte(`{}`), func(tx *sqlx.Tx, record *model.InboxRecord) error {
		return errors.New("downstream unavailable")
	})
	require.Error(t, err)

	// The record persisted but never got processed_at, the state a
	// crashed transaction's redelivery finds.
	record := inboxRecord(t, db, repo, sourceEventID)
	assert.Nil(t, record.ProcessedAt)

	calls := 0
	err = d.Process(ctx, sourceEventID, "TestEvent", []byte(`{}`), func(tx *sqlx.Tx, record *model.InboxRecord) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	record = inboxRecord(t, db, repo, sourceEventID)
	assert.NotNil(t, record.ProcessedAt)
}
