// Package progress tracks instances whose assets are loading and derives the
// client-wide loading and pause state from them.
package progress

import "sync"

// Loadable is anything whose load progress can be sampled. Implementations
// must be comparable; pointers are.
type Loadable interface {
	LoadProgress() float32
}

// Tracker is created once per client and handed to every component that
// reports or observes loading. The frame loop mutates it; exporters may read
// it from other goroutines.
type Tracker struct {
	mu        sync.Mutex
	loading   map[Loadable]struct{}
	succeeded uint64
	failed    uint64
	modal     bool

	nextID   int
	started  map[int]func()
	finished map[int]func()
}

func NewTracker() *Tracker {
	return &Tracker{
		loading:  make(map[Loadable]struct{}),
		started:  make(map[int]func()),
		finished: make(map[int]func()),
	}
}

// OnLoadStarted registers fn to run when the loading set goes from empty to
// non-empty. The returned func unregisters it.
func (t *Tracker) OnLoadStarted(fn func()) (cancel func()) {
	return t.subscribe(t.started, fn)
}

// OnLoadFinished registers fn to run when the loading set becomes empty.
func (t *Tracker) OnLoadFinished(fn func()) (cancel func()) {
	return t.subscribe(t.finished, fn)
}

func (t *Tracker) subscribe(set map[int]func(), fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	set[id] = fn
	return func() {
		t.mu.Lock()
		delete(set, id)
		t.mu.Unlock()
	}
}

// LoadStarted adds l to the loading set.
func (t *Tracker) LoadStarted(l Loadable) {
	t.mu.Lock()
	_, present := t.loading[l]
	first := !present && len(t.loading) == 0
	t.loading[l] = struct{}{}
	observers := t.observersLocked(first, t.started)
	t.mu.Unlock()
	notify(observers)
}

// LoadSucceeded counts a success and removes l from the loading set.
func (t *Tracker) LoadSucceeded(l Loadable) {
	t.mu.Lock()
	t.succeeded++
	t.mu.Unlock()
	t.Untrack(l)
}

// LoadFailed counts a failure and removes l from the loading set.
func (t *Tracker) LoadFailed(l Loadable) {
	t.mu.Lock()
	t.failed++
	t.mu.Unlock()
	t.Untrack(l)
}

// Untrack removes l without counting an outcome, which is what happens when
// an instance is destroyed mid-load. Removing the last loading entry fires
// the finished observers.
func (t *Tracker) Untrack(l Loadable) {
	t.mu.Lock()
	_, present := t.loading[l]
	delete(t.loading, l)
	last := present && len(t.loading) == 0
	observers := t.observersLocked(last, t.finished)
	t.mu.Unlock()
	notify(observers)
}

func (t *Tracker) observersLocked(fire bool, set map[int]func()) []func() {
	if !fire || len(set) == 0 {
		return nil
	}
	out := make([]func(), 0, len(set))
	for id := 0; id < t.nextID; id++ {
		if fn, ok := set[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(observers []func()) {
	for _, fn := range observers {
		fn()
	}
}

// EstimateProgress is the mean progress of the loading set, or 1 when
// nothing is loading.
func (t *Tracker) EstimateProgress() float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.loading) == 0 {
		return 1
	}
	var sum float32
	for l := range t.loading {
		sum += l.LoadProgress()
	}
	return sum / float32(len(t.loading))
}

func (t *Tracker) IsLoading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.loading) > 0
}

func (t *Tracker) LoadingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.loading)
}

func (t *Tracker) SuccessCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.succeeded
}

func (t *Tracker) FailureCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// SetModalDialogShown records whether a blocking dialog is on screen.
func (t *Tracker) SetModalDialogShown(shown bool) {
	t.mu.Lock()
	t.modal = shown
	t.mu.Unlock()
}

func (t *Tracker) ModalDialogShown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.modal
}

// IsApplicationPaused is true while loading or while a modal dialog is shown.
// Input producers stop reporting while paused.
func (t *Tracker) IsApplicationPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.loading) > 0 || t.modal
}
