// Package metrics exports Prometheus metrics for the leave engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counters.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_operations_total",
			Help: "Lifecycle operations by outcome kind",
		},
		[]string{"operation", "kind"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_request_transitions_total",
			Help: "Leave requests reaching a status",
		},
		[]string{"status"},
	)

	LedgerDaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_ledger_days_total",
			Help: "Days moved through the ledger by step",
		},
		[]string{"step"},
	)

	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_decisions_total",
			Help: "Approval decisions recorded by level and decision",
		},
		[]string{"level", "decision"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_operation_retries_total",
			Help: "Operations retried after a concurrent modification",
		},
		[]string{"operation"},
	)

	// Histograms.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leave_operation_duration_seconds",
			Help:    "Lifecycle operation latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	ReservedDays = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leave_reserved_days",
			Help:    "Days reserved per submitted request",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 15, 20, 30},
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leave_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordOperation records the outcome and latency of a lifecycle operation.
// kind is "ok" on success.
func RecordOperation(operation, kind string, took time.Duration) {
	OperationsTotal.WithLabelValues(operation, kind).Inc()
	OperationDuration.WithLabelValues(operation).Observe(took.Seconds())
}

func RecordTransition(status string) {
	TransitionsTotal.WithLabelValues(status).Inc()
}

// RecordLedgerDays counts days reserved, committed or released.
func RecordLedgerDays(step string, days float64) {
	LedgerDaysTotal.WithLabelValues(step).Add(days)
}

func RecordDecision(level, decision string) {
	DecisionsTotal.WithLabelValues(level, decision).Inc()
}

func RecordReservation(days float64) {
	ReservedDays.Observe(days)
	RecordLedgerDays("reserve", days)
}

func RecordRetry(operation string) {
	RetriesTotal.WithLabelValues(operation).Inc()
}

func RecordHTTPRequest(method, route, status string, took time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(took.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
