package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics builds a Metrics struct against an isolated registry so
// tests don't collide with the process-wide default registry.
func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()

	m := &Metrics{
		StoreOpCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_store_ops_total", Help: "test"},
			[]string{"op", "result"},
		),
		WriteTxDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "test_write_tx_duration_seconds", Help: "test"},
		),
		ToolInvocationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_tool_invocations_total", Help: "test"},
			[]string{"tool_name", "outcome"},
		),
		TurnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "test_turn_duration_seconds", Help: "test"},
		),
		InFlightTurns: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "test_in_flight_turns", Help: "test"},
		),
		InFlightBackgroundTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "test_in_flight_background_tasks", Help: "test"},
		),
	}
	reg.MustRegister(m.StoreOpCounter, m.WriteTxDuration, m.ToolInvocationCounter,
		m.TurnDuration, m.InFlightTurns, m.InFlightBackgroundTasks)
	return m, reg
}

func TestRecordStoreOp(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordStoreOp("add", "ok")
	m.RecordStoreOp("add", "ok")
	m.RecordStoreOp("update", "busy_retry")

	expected := `
		# HELP test_store_ops_total test
		# TYPE test_store_ops_total counter
		test_store_ops_total{op="add",result="ok"} 2
		test_store_ops_total{op="update",result="busy_retry"} 1
	`
	if err := testutil.CollectAndCompare(m.StoreOpCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestRecordToolInvocation(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordToolInvocation("add", "success")
	m.RecordToolInvocation("add", "error")
	m.RecordToolInvocation("add", "success")

	if count := testutil.CollectAndCount(m.ToolInvocationCounter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
}

func TestInFlightGauges(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.InFlightTurns.Inc()
	m.InFlightTurns.Inc()
	m.InFlightTurns.Dec()
	m.InFlightBackgroundTasks.Inc()

	if got := testutil.ToFloat64(m.InFlightTurns); got != 1 {
		t.Errorf("InFlightTurns = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.InFlightBackgroundTasks); got != 1 {
		t.Errorf("InFlightBackgroundTasks = %v, want 1", got)
	}
}

func TestWriteTxAndTurnDurationHistograms(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.WriteTxDuration.Observe(0.01)
	m.TurnDuration.Observe(1.5)

	if testutil.CollectAndCount(m.WriteTxDuration) < 1 {
		t.Error("expected write-tx duration histogram to have an observation")
	}
	if testutil.CollectAndCount(m.TurnDuration) < 1 {
		t.Error("expected turn duration histogram to have an observation")
	}
}
