// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Detection metrics
	EventsEmitted     *prometheus.CounterVec
	DedupSuppressed   prometheus.Counter
	PushConnected     prometheus.Gauge
	SourceDegradation prometheus.Counter

	// Validation metrics
	ValidationOutcomes *prometheus.CounterVec

	// Quoting metrics
	QuoteRequests *prometheus.CounterVec
	QuoteErrors   *prometheus.CounterVec
	QuoteRounds   *prometheus.CounterVec
	QuoteLatency  *prometheus.HistogramVec

	// Execution metrics
	ExecutionOutcomes *prometheus.CounterVec
	ExecutionRetries  prometheus.Counter
	InFlightOrders    prometheus.Gauge
	ConfirmLatency    prometheus.Histogram

	// Sniper metrics
	TriggerStates *prometheus.GaugeVec

	// Database metrics
	DBQueryErrors *prometheus.CounterVec

	// Health metrics
	LastEventTimestamp prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "swapbot"
	}

	return &Metrics{
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "events_emitted_total",
			Help:      "Total number of candidate events emitted by kind and source",
		}, []string{"kind", "source"}),
		DedupSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "dedup_suppressed_total",
			Help:      "Total number of duplicate observations suppressed",
		}),
		PushConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "push_connected",
			Help:      "1 when the push subscription is connected, 0 while degraded",
		}),
		SourceDegradation: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "source_degradations_total",
			Help:      "Total number of push channel drops",
		}),

		ValidationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "validation_outcomes_total",
			Help:      "Total number of validation decisions by action",
		}, []string{"action"}),

		QuoteRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quoting",
			Name:      "requests_total",
			Help:      "Total number of quote requests by aggregator",
		}, []string{"aggregator"}),
		QuoteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quoting",
			Name:      "errors_total",
			Help:      "Total number of failed quote requests by aggregator",
		}, []string{"aggregator"}),
		QuoteRounds: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quoting",
			Name:      "rounds_total",
			Help:      "Total number of quote rounds by outcome",
		}, []string{"outcome"}),
		QuoteLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quoting",
			Name:      "latency_seconds",
			Help:      "Quote request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"aggregator"}),

		ExecutionOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "outcomes_total",
			Help:      "Total number of execution outcomes by result",
		}, []string{"outcome"}),
		ExecutionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "retries_total",
			Help:      "Total number of submission retries",
		}),
		InFlightOrders: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "in_flight_orders",
			Help:      "Current number of claimed order keys",
		}),
		ConfirmLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "confirm_latency_seconds",
			Help:      "Time from submission to confirmed receipt in seconds",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
		}),

		TriggerStates: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sniper",
			Name:      "trigger_state",
			Help:      "1 for the current trigger state of each tracked token",
		}, []string{"token", "state"}),

		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastEventTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the last candidate event",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventEmitted counts one emitted candidate event.
func RecordEventEmitted(kind, source string) {
	DefaultMetrics.EventsEmitted.WithLabelValues(kind, source).Inc()
	DefaultMetrics.LastEventTimestamp.SetToCurrentTime()
}

// RecordDedupSuppressed counts one suppressed duplicate observation.
func RecordDedupSuppressed() {
	DefaultMetrics.DedupSuppressed.Inc()
}

// SetPushConnected flips the push channel gauge and counts drops.
func SetPushConnected(connected bool) {
	if connected {
		DefaultMetrics.PushConnected.Set(1)
		return
	}
	DefaultMetrics.PushConnected.Set(0)
	DefaultMetrics.SourceDegradation.Inc()
}

// RecordValidation counts one validation decision.
func RecordValidation(action string) {
	DefaultMetrics.ValidationOutcomes.WithLabelValues(action).Inc()
}

// RecordQuoteRequest records one aggregator query and its latency.
func RecordQuoteRequest(aggregator string, seconds float64, err error) {
	DefaultMetrics.QuoteRequests.WithLabelValues(aggregator).Inc()
	DefaultMetrics.QuoteLatency.WithLabelValues(aggregator).Observe(seconds)
	if err != nil {
		DefaultMetrics.QuoteErrors.WithLabelValues(aggregator).Inc()
	}
}

// RecordQuoteRound counts one completed quote round by outcome.
func RecordQuoteRound(outcome string) {
	DefaultMetrics.QuoteRounds.WithLabelValues(outcome).Inc()
}

// RecordExecutionOutcome counts one terminal execution result.
func RecordExecutionOutcome(outcome string) {
	DefaultMetrics.ExecutionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordExecutionRetry counts one submission retry.
func RecordExecutionRetry() {
	DefaultMetrics.ExecutionRetries.Inc()
}

// SetInFlightOrders updates the claimed order keys gauge.
func SetInFlightOrders(n int) {
	DefaultMetrics.InFlightOrders.Set(float64(n))
}

// RecordConfirmLatency records submission-to-confirmation time.
func RecordConfirmLatency(seconds float64) {
	DefaultMetrics.ConfirmLatency.Observe(seconds)
}

// SetTriggerState marks the current state of a tracked token, clearing
// the previous state's gauge.
func SetTriggerState(token, state, previous string) {
	if previous != "" && previous != state {
		DefaultMetrics.TriggerStates.WithLabelValues(token, previous).Set(0)
	}
	DefaultMetrics.TriggerStates.WithLabelValues(token, state).Set(1)
}

// RecordDBError counts one database query error.
func RecordDBError(database, operation string) {
	DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
}
