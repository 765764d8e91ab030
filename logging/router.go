package logging

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Sink persists events. Each sink is written from a single goroutine.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

// NamedSink registers a sink. MinSeverity filters on top of the router
// threshold.
type NamedSink struct {
	Name        string
	Sink        Sink
	MinSeverity Severity
}

// SinkStats counts what happened to events handed to one sink.
type SinkStats struct {
	Written uint64
	Failed  uint64
	Dropped uint64
}

type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
	Sinks        map[string]SinkStats
}

// Dropped sums the router and per-sink drops.
func (s RouterStats) Dropped() uint64 {
	total := s.DroppedTotal
	for _, sink := range s.Sinks {
		total += sink.Dropped
	}
	return total
}

// Router fans events out to sinks on background workers so the frame loop
// never blocks on I/O. Publish never waits: events that do not fit a queue
// are dropped and counted.
type Router struct {
	clock       Clock
	minSeverity Severity
	fields      map[string]any
	fallback    *log.Logger
	warn        *dropWarner

	queue   chan Event
	workers []*sinkWorker
	stop    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool

	eventsTotal  atomic.Uint64
	droppedTotal atomic.Uint64
}

func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink) *Router {
	if clock == nil {
		clock = SystemClock{}
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	fallback := log.New(os.Stderr, "[logging] ", log.LstdFlags)
	r := &Router{
		clock:       clock,
		minSeverity: cfg.MinimumSeverity,
		fields:      cfg.CloneFields(),
		fallback:    fallback,
		warn:        &dropWarner{clock: clock, interval: cfg.DropWarnInterval, logger: fallback},
		queue:       make(chan Event, bufferSize),
		stop:        make(chan struct{}),
	}

	workerBuffer := min(max(bufferSize, 32), 1024)
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		r.workers = append(r.workers, &sinkWorker{
			name:        named.Name,
			sink:        named.Sink,
			minSeverity: named.MinSeverity,
			events:      make(chan Event, workerBuffer),
			router:      r,
		})
	}

	r.wg.Add(1 + len(r.workers))
	go r.dispatch()
	for _, w := range r.workers {
		go w.run()
	}
	return r
}

func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, w := range r.workers {
			close(w.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.forward(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.forward(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) forward(event Event) {
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeFields(event, r.fields)
	r.eventsTotal.Add(1)
	for _, w := range r.workers {
		if event.Severity < w.minSeverity {
			continue
		}
		select {
		case w.events <- cloneEvent(event):
		default:
			w.dropped.Add(1)
			r.warn.report("sink "+w.name+" backlog full", event)
		}
	}
}

func (r *Router) Publish(ctx context.Context, event Event) {
	if r == nil || event.Type == "" || event.Severity < r.minSeverity {
		return
	}
	if r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.droppedTotal.Add(1)
		r.warn.report("router queue full", event)
	}
}

// Close stops accepting events, flushes queued ones and closes every sink.
func (r *Router) Close(ctx context.Context) error {
	if r == nil || !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.stop)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		EventsTotal:  r.eventsTotal.Load(),
		DroppedTotal: r.droppedTotal.Load(),
		Sinks:        make(map[string]SinkStats, len(r.workers)),
	}
	for _, w := range r.workers {
		stats.Sinks[w.name] = SinkStats{
			Written: w.written.Load(),
			Failed:  w.failed.Load(),
			Dropped: w.dropped.Load(),
		}
	}
	return stats
}

func (r *Router) Sink(name string) Sink {
	for _, w := range r.workers {
		if w.name == name {
			return w.sink
		}
	}
	return nil
}

// dropWarner rate limits fallback messages about dropped events.
type dropWarner struct {
	clock    Clock
	interval time.Duration
	logger   *log.Logger

	mu   sync.Mutex
	next time.Time
}

func (d *dropWarner) report(reason string, event Event) {
	interval := d.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	now := d.clock.Now()
	d.mu.Lock()
	if now.Before(d.next) {
		d.mu.Unlock()
		return
	}
	d.next = now.Add(interval)
	d.mu.Unlock()
	d.logger.Printf("%s: dropping event type=%s frame=%d", reason, event.Type, event.Frame)
}

type sinkWorker struct {
	name        string
	sink        Sink
	minSeverity Severity
	events      chan Event
	router      *Router

	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// run writes events until the channel closes. After consecutive failures the
// worker backs off exponentially, up to 32s, before the next write.
func (w *sinkWorker) run() {
	defer w.router.wg.Done()
	failures := 0
	for event := range w.events {
		if failures > 0 {
			time.Sleep(time.Duration(1<<min(failures, 5)) * time.Second)
		}
		if err := w.sink.Write(event); err != nil {
			failures++
			w.failed.Add(1)
			w.router.fallback.Printf("sink %s failed: %v", w.name, err)
			continue
		}
		failures = 0
		w.written.Add(1)
	}
}
