// Package metrics provides Prometheus metrics for tsg.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tsg"
)

// Grid metrics
var (
	// PersistenceCallsTotal counts reconciliation calls by action and outcome.
	PersistenceCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "persistence_calls_total",
			Help:      "Create/update/delete calls issued by the grid, by result",
		},
		[]string{"action", "result"},
	)

	// DebounceFiresTotal counts debounce timers that ran, by kind (row, cell).
	DebounceFiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "debounce_fires_total",
			Help:      "Debounce timers that fired and queued a save",
		},
		[]string{"kind"},
	)

	// PendingSavesDroppedTotal counts pending saves discarded before running.
	PendingSavesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grid",
			Name:      "pending_saves_dropped_total",
			Help:      "Pending saves dropped by weekend toggles, row clears or teardown",
		},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// HTTPRateLimitedTotal counts requests rejected by the rate limiter.
	HTTPRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected with 429",
		},
	)
)
