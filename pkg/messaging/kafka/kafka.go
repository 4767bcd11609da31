// Package kafka implements the broker over kafka. The outbox record id
// doubles as the message key, so events for one aggregate stay ordered
// within a partition; offsets are committed only after the handler
// returns nil.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jwalitptl/orderpay/pkg/logger"
	"github.com/jwalitptl/orderpay/pkg/messaging"
)

type Config struct {
	Brokers      []string
	BatchTimeout time.Duration
}

type KafkaBroker struct {
	cfg    Config
	logger *logger.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers []*kafka.Reader
	closed  bool
}

func NewKafkaBroker(cfg Config, logger *logger.Logger) (*KafkaBroker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker address is required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	return &KafkaBroker{
		cfg:     cfg,
		logger:  logger,
		writers: make(map[string]*kafka.Writer),
	}, nil
}

func (b *KafkaBroker) writer(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:         kafka.TCP(b.cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: b.cfg.BatchTimeout,
			RequiredAcks: kafka.RequireAll,
		}
		b.writers[topic] = w
	}
	return w
}

func (b *KafkaBroker) Publish(ctx context.Context, topic string, evt messaging.Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.writer(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.ID.String()),
		Value: value,
	})
}

func (b *KafkaBroker) Subscribe(ctx context.Context, topic, group string, h messaging.Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.cfg.Brokers,
		GroupID:     group,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
	})

	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	go b.consume(ctx, reader, h)
	return nil
}

func (b *KafkaBroker) consume(ctx context.Context, reader *kafka.Reader, h messaging.Handler) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error(err, "failed to fetch message", "topic", reader.Config().Topic)
			time.Sleep(time.Second)
			continue
		}

		var evt messaging.Event
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			// A message that cannot even be enveloped can never succeed;
			// commit past it rather than wedge the partition.
			b.logger.Error(err, "dropping malformed message",
				"topic", msg.Topic, "offset", msg.Offset)
			if err := reader.CommitMessages(ctx, msg); err != nil {
				b.logger.Error(err, "failed to commit offset")
			}
			continue
		}

		// The group offset is a single watermark per partition: fetching
		// the next message while this one is unhandled would let a later
		// commit advance past it for good. Retry in place instead.
		if err := deliver(ctx, h, evt, retryBackoff, func(handlerErr error) {
			b.logger.Warn("handler failed, will redeliver",
				"topic", msg.Topic, "event_id", evt.ID.String(),
				"reason", handlerErr.Error())
		}); err != nil {
			return
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			b.logger.Error(err, "failed to commit offset",
				"topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

const retryBackoff = time.Second

// deliver invokes h until it returns nil, waiting backoff between
// attempts. Returns ctx.Err() when the context ends first.
func deliver(ctx context.Context, h messaging.Handler, evt messaging.Event, backoff time.Duration, onRetry func(error)) error {
	for {
		err := h(ctx, evt)
		if err == nil {
			return nil
		}
		onRetry(err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	for _, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, r := range b.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
