package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"siro-hitl/client/logging"
)

func TestConsoleFormatsEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsole(&buf)
	err := sink.Write(logging.Event{
		Type:     "network.connected",
		Frame:    12,
		Severity: logging.SeverityInfo,
		Actor:    logging.EntityRef{ID: "ws://localhost:8888", Kind: logging.EntityKindConnection},
		Payload:  map[string]int{"attempt": 2},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"[network.connected]", "frame=12", "severity=info", "actor=connection:ws://localhost:8888", `payload={"attempt":2}`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestJSONWritesOneRecordPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, 0)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if err := sink.Write(logging.Event{Type: "replay.load_failed", Frame: uint64(i), Time: now, Severity: logging.SeverityWarn}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record["severity"] != "warn" || record["frame"].(float64) != 1 {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestMemorySinkFiltersByType(t *testing.T) {
	sink := NewMemorySink()
	sink.Publish(context.Background(), logging.Event{Type: "a"})
	sink.Publish(context.Background(), logging.Event{Type: "b"})
	sink.Publish(context.Background(), logging.Event{Type: "a"})
	if got := len(sink.OfType("a")); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
	sink.Reset()
	if got := len(sink.Events()); got != 0 {
		t.Fatalf("expected reset sink, got %d", got)
	}
}

func TestBoundedMemorySinkKeepsNewest(t *testing.T) {
	sink := NewBoundedMemorySink(2)
	for frame := uint64(1); frame <= 3; frame++ {
		_ = sink.Write(logging.Event{Type: "a", Frame: frame})
	}
	events := sink.Events()
	if len(events) != 2 || events[0].Frame != 2 || events[1].Frame != 3 {
		t.Fatalf("unexpected events: %+v", events)
	}
	last, ok := sink.Last("a")
	if !ok || last.Frame != 3 {
		t.Fatalf("expected newest event, got %+v %v", last, ok)
	}
	if _, ok := sink.Last("b"); ok {
		t.Fatalf("expected no event of type b")
	}
}
