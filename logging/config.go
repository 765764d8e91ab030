package logging

import (
	"maps"
	"slices"
	"time"
)

// Config is the logging section of the client config after parsing. Sinks
// are named "console" and "json".
type Config struct {
	EnabledSinks []string
	// BufferSize bounds the router queue. The frame loop never waits on it.
	BufferSize      int
	MinimumSeverity Severity
	// SinkSeverity raises individual sinks above MinimumSeverity, for a quiet
	// console next to a verbose JSON event log.
	SinkSeverity map[string]Severity
	// Fields are stamped on every event, e.g. the client build or host.
	Fields           map[string]any
	JSON             JSONConfig
	DropWarnInterval time.Duration
}

// JSONConfig places the NDJSON event log. An empty FilePath writes to stdout.
type JSONConfig struct {
	FilePath      string
	FlushInterval time.Duration
}

// DefaultConfig logs info and above to the console only.
func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       256,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON:             JSONConfig{FlushInterval: 2 * time.Second},
	}
}

func (c Config) HasSink(name string) bool {
	return slices.Contains(c.EnabledSinks, name)
}

// SeverityFor is the effective threshold of the named sink. A sink can be
// made stricter than MinimumSeverity, never looser.
func (c Config) SeverityFor(name string) Severity {
	return max(c.SinkSeverity[name], c.MinimumSeverity)
}

// CloneFields copies Fields so the router owns its map.
func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	return maps.Clone(c.Fields)
}
