package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queue definitions written, by operation
	QueueOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuestore_queue_ops_total",
			Help: "Total number of queue definition writes",
		},
		[]string{"op"},
	)

	// Messages persisted counter
	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuestore_messages_persisted_total",
			Help: "Total number of messages persisted",
		},
		[]string{"queue"},
	)

	// Messages deleted counter
	MessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queuestore_messages_deleted_total",
			Help: "Total number of message deletions",
		},
	)

	// Pending lookups, by result (hit or empty)
	PendingLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuestore_pending_lookups_total",
			Help: "Total number of pending message lookups",
		},
		[]string{"queue", "result"},
	)

	// Claim attempts, by outcome (won or lost)
	Claims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuestore_claims_total",
			Help: "Total number of delivery claim attempts",
		},
		[]string{"queue", "outcome"},
	)

	// Store errors, by operation
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuestore_store_errors_total",
			Help: "Total number of store operations that returned an error",
		},
		[]string{"op"},
	)

	// Store operation latency
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queuestore_store_duration_seconds",
			Help:    "Time taken by store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Worker handler outcomes (ok, error, panic)
	HandlerResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuestore_worker_handler_total",
			Help: "Total number of messages handled by workers",
		},
		[]string{"queue", "result"},
	)
)
