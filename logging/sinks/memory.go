package sinks

import (
	"context"
	"slices"
	"sync"

	"siro-hitl/client/logging"
)

// MemorySink records events for tests and for the in-process event tail.
// With a positive limit only the newest events are kept.
type MemorySink struct {
	mu     sync.RWMutex
	limit  int
	events []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// NewBoundedMemorySink keeps at most limit events.
func NewBoundedMemorySink(limit int) *MemorySink {
	return &MemorySink{limit: limit}
}

func (s *MemorySink) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, logging.CloneEvent(event))
	if s.limit > 0 && len(s.events) > s.limit {
		s.events = slices.Delete(s.events, 0, len(s.events)-s.limit)
	}
	return nil
}

func (s *MemorySink) Events() []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

func (s *MemorySink) OfType(eventType logging.EventType) []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []logging.Event
	for _, event := range s.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// Last returns the newest event of the given type.
func (s *MemorySink) Last(eventType logging.EventType) (logging.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == eventType {
			return s.events[i], true
		}
	}
	return logging.Event{}, false
}

func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

func (s *MemorySink) Close(context.Context) error { return nil }

// Publish lets a MemorySink stand in for a logging.Publisher.
func (s *MemorySink) Publish(_ context.Context, event logging.Event) {
	_ = s.Write(event)
}
