package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Store operation outcomes (ok, busy_retry, busy_exhausted, error) by kind
//   - Write-transaction latency
//   - Tool invocations by name and outcome
//   - Turn duration
//   - In-flight turns and background tasks
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordStoreOp("add", "ok")
//	defer metrics.WriteTxDuration.Observe(time.Since(start).Seconds())
type Metrics struct {
	// StoreOpCounter counts Store operations by kind and result.
	// Labels: op (add|get|update|delete|find|count|collection_append|collection_get|full_text_search),
	// result (ok|busy_retry|busy_exhausted|error)
	StoreOpCounter *prometheus.CounterVec

	// WriteTxDuration measures write-transaction latency in seconds.
	WriteTxDuration prometheus.Histogram

	// ToolInvocationCounter counts tool invocations by name and outcome.
	// Labels: tool_name, outcome (success|error|timeout)
	ToolInvocationCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn duration in seconds.
	TurnDuration prometheus.Histogram

	// InFlightTurns is a gauge of turns currently being processed.
	InFlightTurns prometheus.Gauge

	// InFlightBackgroundTasks is a gauge of running background tasks
	// launched by post_call middleware.
	InFlightBackgroundTasks prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics. Call once at
// startup; all metrics register with Prometheus's default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		StoreOpCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_store_ops_total",
				Help: "Total Store operations by kind and result",
			},
			[]string{"op", "result"},
		),

		WriteTxDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatcore_store_write_tx_duration_seconds",
				Help:    "Duration of Store write transactions in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),

		ToolInvocationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_tool_invocations_total",
				Help: "Total tool invocations by tool name and outcome",
			},
			[]string{"tool_name", "outcome"},
		),

		TurnDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatcore_turn_duration_seconds",
				Help:    "Duration of a full TurnOrchestrator run in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		InFlightTurns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatcore_in_flight_turns",
				Help: "Current number of turns being processed",
			},
		),

		InFlightBackgroundTasks: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatcore_in_flight_background_tasks",
				Help: "Current number of running background tasks",
			},
		),
	}
}

// RecordStoreOp increments the store-operation counter for op/result.
func (m *Metrics) RecordStoreOp(op, result string) {
	m.StoreOpCounter.WithLabelValues(op, result).Inc()
}

// RecordToolInvocation increments the tool-invocation counter for
// toolName/outcome.
func (m *Metrics) RecordToolInvocation(toolName, outcome string) {
	m.ToolInvocationCounter.WithLabelValues(toolName, outcome).Inc()
}

// ObserveWriteTxDuration records one write-transaction latency sample.
func (m *Metrics) ObserveWriteTxDuration(seconds float64) {
	m.WriteTxDuration.Observe(seconds)
}

// ObserveTurnDuration records one turn-duration sample.
func (m *Metrics) ObserveTurnDuration(seconds float64) {
	m.TurnDuration.Observe(seconds)
}
