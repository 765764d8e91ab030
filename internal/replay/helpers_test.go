package replay

import (
	"testing"

	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
)

func testLogger(t *testing.T) telemetry.Logger {
	return telemetry.LoggerFunc(func(format string, args ...any) {
		t.Logf(format, args...)
	})
}

func telemetryMetrics(m *logging.Metrics) telemetry.Metrics {
	return telemetry.WrapMetrics(m)
}
