package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/repository"
	"github.com/jwalitptl/orderpay/pkg/logger"
	"github.com/jwalitptl/orderpay/pkg/messaging"
	"github.com/jwalitptl/orderpay/pkg/metrics"
)

type DispatcherConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// PublishRate caps bus publishes per second across a batch. Zero
	// means unlimited.
	PublishRate rate.Limit
}

// Dispatcher drains the outbox: it polls for unsent records in
// occurred-at order and publishes each to the bus, marking sent_at on
// success. A crash between publish and mark causes a redelivery, which
// the consumer's inbox absorbs; duplicates here are by contract safe.
type Dispatcher struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	topics  map[string]string // event type -> topic
	config  DispatcherConfig
	limiter *rate.Limiter
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	topics map[string]string,
	config DispatcherConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Dispatcher {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}

	limit := config.PublishRate
	if limit <= 0 {
		limit = rate.Inf
	}

	return &Dispatcher{
		repo:    repo,
		broker:  broker,
		topics:  topics,
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		metrics: metrics,
	}
}

// Start polls until ctx is cancelled. Transient failures (an empty
// batch, an unreachable broker, a store hiccup) never terminate the
// loop.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	d.logger.Info("Starting outbox dispatcher")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Shutting down outbox dispatcher")
			return
		case <-ticker.C:
			if err := d.ProcessBatch(ctx); err != nil {
				d.logger.Error(err, "Failed to process outbox batch")
			}
		}
	}
}

// ProcessBatch publishes one batch of pending records. Each record's
// outcome is independent: a failed publish records last_error and leaves
// the record pending for the next cycle.
func (d *Dispatcher) ProcessBatch(ctx context.Context) error {
	timer := prometheus.NewTimer(d.metrics.OutboxPublishLatency)
	defer timer.ObserveDuration()

	records, err := d.repo.GetPending(ctx, d.config.BatchSize)
	if err != nil {
		d.metrics.DatabaseOperations.WithLabelValues("get_pending", "error").Inc()
		return fmt.Errorf("failed to get pending outbox records: %w", err)
	}
	d.metrics.DatabaseOperations.WithLabelValues("get_pending", "success").Inc()
	d.metrics.OutboxBatchSize.Observe(float64(len(records)))

	for _, record := range records {
		if err := d.publish(ctx, record); err != nil {
			d.logger.Error(err, "Failed to publish outbox record",
				"record_id", record.ID.String(),
				"event_type", record.EventType)
			continue
		}
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, record *model.OutboxRecord) error {
	topic, ok := d.topics[record.EventType]
	if !ok {
		err := fmt.Errorf("no topic configured for event type %s", record.EventType)
		if markErr := d.repo.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			d.logger.Error(markErr, "Failed to record outbox error", "record_id", record.ID.String())
		}
		return err
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	evt := messaging.Event{
		ID:      record.ID,
		Type:    record.EventType,
		Payload: record.Payload,
	}
	if err := d.broker.Publish(ctx, topic, evt); err != nil {
		d.metrics.OutboxEventsFailed.Inc()
		if markErr := d.repo.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			d.logger.Error(markErr, "Failed to record outbox error", "record_id", record.ID.String())
		}
		return err
	}

	if err := d.repo.MarkSent(ctx, record.ID, time.Now().UTC()); err != nil {
		// The event is out but the record is still pending; it will be
		// republished and the downstream inbox will drop the duplicate.
		return fmt.Errorf("published but failed to mark sent: %w", err)
	}

	d.metrics.OutboxEventsPublished.Inc()
	return nil
}
