// Package memory is an in-process broker for development and tests. It
// deliberately keeps the at-least-once contract: a handler error leaves
// the event queued for redelivery after a delay.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/orderpay/pkg/messaging"
)

const queueDepth = 256

type subscription struct {
	handler messaging.Handler
	queue   chan messaging.Event
}

type Broker struct {
	mu             sync.Mutex
	subs           map[string]map[string]*subscription // topic -> group
	redeliverAfter time.Duration
	closed         bool
}

func New(redeliverAfter time.Duration) *Broker {
	return &Broker{
		subs:           make(map[string]map[string]*subscription),
		redeliverAfter: redeliverAfter,
	}
}

func (b *Broker) Publish(ctx context.Context, topic string, evt messaging.Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("broker is closed")
	}
	groups := make([]*subscription, 0, len(b.subs[topic]))
	for _, sub := range b.subs[topic] {
		groups = append(groups, sub)
	}
	b.mu.Unlock()

	for _, sub := range groups {
		select {
		case sub.queue <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, topic, group string, h messaging.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("broker is closed")
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[string]*subscription)
	}
	if _, exists := b.subs[topic][group]; exists {
		return fmt.Errorf("group %s already subscribed to %s", group, topic)
	}

	sub := &subscription{
		handler: h,
		queue:   make(chan messaging.Event, queueDepth),
	}
	b.subs[topic][group] = sub

	go b.consume(ctx, sub)
	return nil
}

// consume retries a failed delivery until it succeeds or the context is
// cancelled; only a nil handler return drops the event from the queue.
func (b *Broker) consume(ctx context.Context, sub *subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-sub.queue:
			for {
				if err := sub.handler(ctx, evt); err == nil {
					break
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(b.redeliverAfter):
				}
			}
		}
	}
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
