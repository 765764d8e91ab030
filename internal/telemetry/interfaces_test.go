package telemetry

import (
	"bytes"
	"log"
	"testing"

	"siro-hitl/client/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WrapLogger(log.New(&buf, "", 0))
		logger.Printf("[network] connected to %s", "ws://localhost:8888")
		if got := buf.String(); got != "[network] connected to ws://localhost:8888\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})

	t.Run("or discard", func(t *testing.T) {
		OrDiscard(nil).Printf("dropped")
		var nilFunc LoggerFunc
		nilFunc.Printf("dropped")
	})
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add(MetricLoadRetries, 2)
	adapter.Store(MetricLoadRetries, 5)
	adapter.Add(MetricLoadRetries, 3)

	if got := metrics.Snapshot()[MetricLoadRetries]; got != 8 {
		t.Fatalf("unexpected metric value: %d", got)
	}

	var nilAdapter Metrics = WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
	MetricsOrNop(nil).Add("ignored", 1)
}
