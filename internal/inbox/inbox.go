// Package inbox implements exactly-once-effect consumption on top of an
// at-least-once, possibly-duplicating, possibly-reordering delivery
// stream. The transport is never trusted to deduplicate; a local ledger
// keyed by the sender's event id is.
package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	cache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/repository"
	"github.com/jwalitptl/orderpay/pkg/logger"
	"github.com/jwalitptl/orderpay/pkg/metrics"
)

// BusinessHandler executes the business effect for a first-time (or
// crashed-and-redelivered) event inside the delivery's transaction.
//
// The error return is the terminal-versus-retry signal. Return nil when
// the delivery is terminally handled (success, business rejection, or
// malformed payload, each with any outcome event already appended to the
// outbox). Return an error only for infrastructure failures, which roll
// the whole transaction back and rely on redelivery.
type BusinessHandler func(tx *sqlx.Tx, record *model.InboxRecord) error

type Deduplicator struct {
	store   repository.Store
	repo    repository.InboxRepository
	seen    *cache.Cache
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewDeduplicator builds the consumer-side dedup layer. seenTTL bounds
// the in-memory fast path only; correctness always rests on the store.
func NewDeduplicator(
	store repository.Store,
	repo repository.InboxRepository,
	seenTTL time.Duration,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Deduplicator {
	return &Deduplicator{
		store:   store,
		repo:    repo,
		seen:    cache.New(seenTTL, 2*seenTTL),
		logger:  logger,
		metrics: metrics,
	}
}

// Process runs the inbox protocol for one delivery in one local
// transaction: look up the source event id, skip if already processed,
// otherwise insert-or-retry the record, run fn, and mark the record
// processed, all guarded by a single commit. Callers must acknowledge
// the bus delivery only after Process returns nil.
func (d *Deduplicator) Process(ctx context.Context, sourceEventID uuid.UUID, eventType string, payload []byte, fn BusinessHandler) error {
	if _, dup := d.seen.Get(sourceEventID.String()); dup {
		d.metrics.InboxDuplicates.Inc()
		return nil
	}

	duplicate := false
	err := d.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		record, err := d.repo.GetBySourceTx(ctx, tx, sourceEventID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		switch {
		case record != nil && record.ProcessedAt != nil:
			duplicate = true
			return nil
		case record != nil:
			d.logger.Warn("inbox record found unprocessed, retrying",
				"source_event_id", sourceEventID.String(),
				"event_type", eventType)
		default:
			record = &model.InboxRecord{
				ID:            uuid.New(),
				SourceEventID: sourceEventID,
				EventType:     eventType,
				Payload:       payload,
				ReceivedAt:    time.Now().UTC(),
			}
			if err := d.repo.CreateTx(ctx, tx, record); err != nil {
				return err
			}
		}

		if err := fn(tx, record); err != nil {
			return err
		}
		return d.repo.MarkProcessedTx(ctx, tx, record.ID, time.Now().UTC())
	})
	if err != nil {
		d.metrics.InboxEventsFailed.Inc()
		return err
	}

	d.seen.SetDefault(sourceEventID.String(), struct{}{})
	if duplicate {
		d.logger.Debug("skipping already-processed event",
			"source_event_id", sourceEventID.String(),
			"event_type", eventType)
		d.metrics.InboxDuplicates.Inc()
		return nil
	}
	d.metrics.InboxEventsProcessed.Inc()
	return nil
}
