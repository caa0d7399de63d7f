// Package metrics holds the Prometheus collectors shared by the server and worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demolens_jobs_processed_total",
			Help: "Processor runs by outcome",
		},
		[]string{"outcome"},
	)

	CASConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demolens_cas_conflicts_total",
			Help: "Conditional updates whose precondition no longer held, by target status",
		},
		[]string{"target"},
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demolens_validation_failures_total",
			Help: "Rejected payload fields by path",
		},
		[]string{"path"},
	)

	SourceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "demolens_source_fetch_seconds",
			Help:    "Third-party fetch latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"result"},
	)

	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demolens_queue_messages_total",
			Help: "Queue messages handled by the consumer, by result",
		},
		[]string{"result"},
	)

	JobsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "demolens_jobs_created_total",
			Help: "Jobs created through the API",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
