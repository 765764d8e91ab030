// Package telemetry is the narrow surface client components log and count
// through. Lines are free-form and start with a bracketed component tag such
// as "[replay]" or "[network]"; counters are named by the Metric constants and
// end up in the prometheus exporter.
package telemetry

import (
	"log"

	"siro-hitl/client/logging"
)

// Logger receives one formatted line per call.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc lets tests route lines to t.Logf. A nil func drops them.
type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f != nil {
		f(format, args...)
	}
}

// stdLogger forwards to a *log.Logger; a nil one drops lines.
type stdLogger struct {
	out *log.Logger
}

func (l stdLogger) Printf(format string, args ...any) {
	if l.out != nil {
		l.out.Printf(format, args...)
	}
}

// WrapLogger routes lines to logger.
func WrapLogger(logger *log.Logger) Logger {
	return stdLogger{out: logger}
}

// Discard drops every line.
func Discard() Logger {
	return LoggerFunc(nil)
}

// OrDiscard keeps optional loggers in Deps structs usable when unset.
func OrDiscard(logger Logger) Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

// Metrics bumps or overwrites named counters.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// counters writes through to the shared logging.Metrics table the exporter
// reads from.
type counters struct {
	table *logging.Metrics
}

func (c counters) Add(key string, delta uint64) {
	if c.table != nil {
		c.table.TelemetryAdd(key, delta)
	}
}

func (c counters) Store(key string, value uint64) {
	if c.table != nil {
		c.table.TelemetryStore(key, value)
	}
}

// WrapMetrics exposes table as Metrics.
func WrapMetrics(table *logging.Metrics) Metrics {
	return counters{table: table}
}

type nopMetrics struct{}

func (nopMetrics) Add(string, uint64)   {}
func (nopMetrics) Store(string, uint64) {}

// MetricsOrNop mirrors OrDiscard for counters.
func MetricsOrNop(metrics Metrics) Metrics {
	if metrics == nil {
		return nopMetrics{}
	}
	return metrics
}

// Counter names, exported as labels of hitl_client_metric.
const (
	MetricKeyframesApplied     = "keyframes_applied"
	MetricKeyframesRejected    = "keyframes_rejected"
	MetricCreationsSkipped     = "creations_skipped"
	MetricLoadsSucceeded       = "loads_succeeded"
	MetricLoadsFailed          = "loads_failed"
	MetricLoadRetries          = "load_retries"
	MetricRigMismatches        = "rig_mismatches"
	MetricMessagesReceived     = "messages_received"
	MetricConnectAttempts      = "connect_attempts"
	MetricConnectionsDiscarded = "connections_discarded"
	MetricClientStatesSent     = "client_states_sent"
	MetricClientStateFailures  = "client_state_send_failures"
	MetricReclaimPasses        = "reclaim_passes"
	MetricFrameOverruns        = "frame_overruns"
	MetricEventsDropped        = "log_events_dropped"
)
