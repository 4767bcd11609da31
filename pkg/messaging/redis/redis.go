// Package redis implements the broker over redis streams. Streams with
// consumer groups give manual acknowledgement: an entry stays in the
// group's pending list until XAck, so a consumer that dies mid-delivery
// gets the entry back on restart.
package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/orderpay/pkg/logger"
	"github.com/jwalitptl/orderpay/pkg/messaging"
)

type Config struct {
	URL          string
	ReadCount    int64
	ReadBlock    time.Duration
	PoolSize     int
	MinIdleConns int
	// PendingRescan bounds how long an entry parked in the pending list
	// by a failed handler waits before it is read again.
	PendingRescan time.Duration
}

type RedisBroker struct {
	client *redis.Client
	cfg    Config
	logger *logger.Logger
}

func NewRedisBroker(cfg Config, logger *logger.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if cfg.ReadBlock <= 0 {
		cfg.ReadBlock = 5 * time.Second
	}
	if cfg.PendingRescan <= 0 {
		cfg.PendingRescan = 30 * time.Second
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBroker{client: client, cfg: cfg, logger: logger}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, evt messaging.Event) error {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"id":      evt.ID.String(),
			"type":    evt.Type,
			"payload": string(evt.Payload),
		},
	}).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic, group string, h messaging.Handler) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	consumer := consumerName()
	go b.consume(ctx, topic, group, consumer, h)
	return nil
}

func (b *RedisBroker) consume(ctx context.Context, topic, group, consumer string, h messaging.Handler) {
	// "0" reads this consumer's pending list: entries claimed but never
	// acked, either by a previous crash or by a failed handler. ">"
	// blocks for new deliveries. The cursor returns to "0" every
	// PendingRescan so parked entries are retried while the process
	// lives, not just on the next restart.
	cursor := "0"
	lastScan := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{topic, cursor},
			Count:    b.cfg.ReadCount,
			Block:    b.cfg.ReadBlock,
		}).Result()
		if err == redis.Nil {
			cursor, lastScan = nextCursor(cursor, true, lastScan, time.Now(), b.cfg.PendingRescan)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error(err, "failed to read from stream", "topic", topic)
			time.Sleep(time.Second)
			continue
		}

		empty := true
		failed := false
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				empty = false
				evt, err := eventFromValues(msg.Values)
				if err != nil {
					// Unparseable entry: ack it away, it can never succeed.
					b.logger.Error(err, "dropping malformed stream entry", "stream_id", msg.ID)
					b.client.XAck(ctx, topic, group, msg.ID)
					continue
				}
				if err := h(ctx, evt); err != nil {
					failed = true
					b.logger.Warn("handler failed, leaving entry pending",
						"topic", topic, "event_id", evt.ID.String())
					continue
				}
				if err := b.client.XAck(ctx, topic, group, msg.ID).Err(); err != nil {
					b.logger.Error(err, "failed to ack stream entry", "stream_id", msg.ID)
				}
			}
		}
		if failed {
			// The entries stay pending and the "0" cursor will see them
			// again; pace the retries.
			time.Sleep(time.Second)
		}
		cursor, lastScan = nextCursor(cursor, empty, lastScan, time.Now(), b.cfg.PendingRescan)
	}
}

// nextCursor flips the stream read cursor between the pending-list scan
// ("0") and new deliveries (">"). A drained pending scan moves to ">";
// once rescanInterval has passed the cursor returns to "0" so unacked
// entries get another delivery.
func nextCursor(cursor string, drained bool, lastScan, now time.Time, rescanInterval time.Duration) (string, time.Time) {
	if cursor == "0" {
		if drained {
			return ">", now
		}
		return "0", lastScan
	}
	if now.Sub(lastScan) >= rescanInterval {
		return "0", lastScan
	}
	return ">", lastScan
}

func eventFromValues(values map[string]interface{}) (messaging.Event, error) {
	rawID, _ := values["id"].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return messaging.Event{}, fmt.Errorf("invalid event id %q: %w", rawID, err)
	}
	eventType, _ := values["type"].(string)
	payload, _ := values["payload"].(string)
	return messaging.Event{ID: id, Type: eventType, Payload: []byte(payload)}, nil
}

func consumerName() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
