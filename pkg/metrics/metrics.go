package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Outbox related metrics
	OutboxEventsPublished prometheus.Counter
	OutboxEventsFailed    prometheus.Counter
	OutboxPublishLatency  prometheus.Histogram
	OutboxBatchSize       prometheus.Histogram

	// Inbox related metrics
	InboxEventsProcessed prometheus.Counter
	InboxDuplicates      prometheus.Counter
	InboxEventsFailed    prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// New creates all application metrics registered against reg. Passing a
// fresh prometheus.NewRegistry keeps tests independent of the default
// registerer.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OutboxEventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_published_total",
			Help:      "Total number of outbox events published to the broker",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of outbox publish attempts that failed",
		}),
		OutboxPublishLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_publish_duration_seconds",
			Help:      "Time spent publishing a batch of outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_batch_size",
			Help:      "Number of pending events picked up per dispatcher cycle",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		InboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbox_events_processed_total",
			Help:      "Total number of inbox events processed to completion",
		}),
		InboxDuplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbox_duplicates_total",
			Help:      "Total number of redeliveries skipped by deduplication",
		}),
		InboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbox_events_failed_total",
			Help:      "Total number of inbox deliveries rolled back for retry",
		}),
		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
