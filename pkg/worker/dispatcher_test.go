package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/outbox"
	"github.com/jwalitptl/orderpay/internal/repository/inmem"
	"github.com/jwalitptl/orderpay/pkg/logger"
	"github.com/jwalitptl/orderpay/pkg/messaging"
	"github.com/jwalitptl/orderpay/pkg/metrics"
)

// stubBroker records publishes and can be told to fail them.
type stubBroker struct {
	mu     sync.Mutex
	fail   bool
	events []messaging.Event
}

func (b *stubBroker) Publish(ctx context.Context, topic string, evt messaging.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("broker unavailable")
	}
	b.events = append(b.events, evt)
	return nil
}

func (b *stubBroker) Subscribe(ctx context.Context, topic, group string, h messaging.Handler) error {
	return nil
}

func (b *stubBroker) Close() error { return nil }

func (b *stubBroker) setFail(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = fail
}

func (b *stubBroker) published() []messaging.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]messaging.Event(nil), b.events...)
}

func newTestDispatcher(repo *inmem.Outbox, broker messaging.Broker, topics map[string]string) *Dispatcher {
	return NewDispatcher(repo, broker, topics, DispatcherConfig{
		BatchSize:    10,
		PollInterval: time.Second,
	}, logger.NewNop(), metrics.New(prometheus.NewRegistry(), "test"))
}

func appendRecord(t *testing.T, db *inmem.DB, writer *outbox.Writer, eventType string) *model.OutboxRecord {
	t.Helper()
	var record *model.OutboxRecord
	err := db.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		var err error
		record, err = writer.AppendTx(context.Background(), tx, eventType, map[string]string{"k": "v"})
		return err
	})
	require.NoError(t, err)
	return record
}

func TestDispatcher_ProcessBatch_PublishesAndMarksSent(t *testing.T) {
	ctx := context.Background()
	db := inmem.New()
	repo := inmem.NewOutboxRepository(db)
	writer := outbox.NewWriter(repo)
	broker := &stubBroker{}

	first := appendRecord(t, db, writer, "OrderPaymentRequested")
	second := appendRecord(t, db, writer, "OrderPaymentRequested")

	d := newTestDispatcher(repo, broker, map[string]string{"OrderPaymentRequested": "order-payment-requests"})
	require.NoError(t, d.ProcessBatch(ctx))

	events := broker.published()
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	for _, record := range repo.All() {
		assert.NotNil(t, record.SentAt)
	}
}

func TestDispatcher_ProcessBatch_BrokerFailureLeavesRecordPending(t *testing.T) {
	ctx := context.Background()
	db := inmem.New()
	repo := inmem.NewOutboxRepository(db)
	writer := outbox.NewWriter(repo)
	broker := &stubBroker{fail: true}

	record := appendRecord(t, db, writer, "OrderPaymentRequested")

	d := newTestDispatcher(repo, broker, map[string]string{"OrderPaymentRequested": "order-payment-requests"})
	require.NoError(t, d.ProcessBatch(ctx))

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].LastError)
	assert.Contains(t, *pending[0].LastError, "broker unavailable")

	// Next cycle with a healthy broker drains the record.
	broker.setFail(false)
	require.NoError(t, d.ProcessBatch(ctx))

	events := broker.published()
	require.Len(t, events, 1)
	assert.Equal(t, record.ID, events[0].ID)
	pending, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcher_ProcessBatch_UnknownEventType(t *testing.T) {
	ctx := context.Background()
	db := inmem.New()
	repo := inmem.NewOutboxRepository(db)
	writer := outbox.NewWriter(repo)
	broker := &stubBroker{}

	appendRecord(t, db, writer, "UnroutableEvent")

	d := newTestDispatcher(repo, broker, map[string]string{"OrderPaymentRequested": "order-payment-requests"})
	require.NoError(t, d.ProcessBatch(ctx))

	assert.Empty(t, broker.published())
	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].LastError)
	assert.Contains(t, *pending[0].LastError, "no topic configured")
}

func TestDispatcher_RepublishesAfterCrashBeforeMarkSent(t *testing.T) {
	ctx := context.Background()
	db := inmem.New()
	repo := inmem.NewOutboxRepository(db)
	writer := outbox.NewWriter(repo)
	broker := &stubBroker{}

	record := appendRecord(t, db, writer, "OrderPaymentRequested")

	d := newTestDispatcher(repo, broker, map[string]string{"OrderPaymentRequested": "order-payment-requests"})
	require.NoError(t, d.ProcessBatch(ctx))
	require.Len(t, broker.published(), 1)

	// Crash window: the event went out but sent_at was never written.
	repo.ResetSent(record.ID)
	require.NoError(t, d.ProcessBatch(ctx))

	events := broker.published()
	require.Len(t, events, 2)
	// Same event id both times, so the downstream inbox can deduplicate.
	assert.Equal(t, events[0].ID, events[1].ID)
}
