// Package async carries results of background work back to the frame loop.
// Components poll an Operation each tick instead of blocking on it.
package async

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

// ErrReleased is returned by Result after the operation was released.
var ErrReleased = errors.New("async: operation released")

// Operation is a handle to work that completes on another goroutine.
type Operation[T any] interface {
	// Done reports whether Result is available.
	Done() bool
	// Progress is in [0, 1].
	Progress() float32
	// Result returns the outcome. It is only meaningful once Done is true.
	Result() (T, error)
	// Release drops the handle. Work still in flight is cancelled if possible
	// and its outcome is discarded.
	Release()
}

// Future is an Operation resolved exactly once by a producer goroutine.
type Future[T any] struct {
	done     atomic.Bool
	released atomic.Bool
	progress atomic.Uint32 // float32 bits
	mu       sync.Mutex
	value    T
	err      error
	cancel   func()
	doneCh   chan struct{}
}

// NewFuture returns a pending Future. cancel, when non-nil, is called on Release.
func NewFuture[T any](cancel func()) *Future[T] {
	return &Future[T]{cancel: cancel, doneCh: make(chan struct{})}
}

// Resolve completes the future. Later calls are ignored.
func (f *Future[T]) Resolve(value T, err error) {
	f.mu.Lock()
	if f.done.Load() {
		f.mu.Unlock()
		return
	}
	f.value = value
	f.err = err
	f.setProgress(1)
	f.done.Store(true)
	f.mu.Unlock()
	close(f.doneCh)
}

// SetProgress records partial progress, clamped to [0, 1].
func (f *Future[T]) SetProgress(p float32) {
	if f.done.Load() {
		return
	}
	f.setProgress(p)
}

func (f *Future[T]) setProgress(p float32) {
	f.progress.Store(math.Float32bits(min(max(p, 0), 1)))
}

func (f *Future[T]) Done() bool {
	return f.done.Load()
}

func (f *Future[T]) Progress() float32 {
	return math.Float32frombits(f.progress.Load())
}

func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released.Load() {
		var zero T
		return zero, ErrReleased
	}
	return f.value, f.err
}

func (f *Future[T]) Release() {
	if !f.released.CompareAndSwap(false, true) {
		return
	}
	if f.cancel != nil && !f.done.Load() {
		f.cancel()
	}
}

// Released reports whether the consumer dropped the handle.
func (f *Future[T]) Released() bool {
	return f.released.Load()
}

// Wait returns a channel closed when the future resolves.
func (f *Future[T]) Wait() <-chan struct{} {
	return f.doneCh
}

// Go runs fn on a new goroutine and resolves the returned Future with its
// result. fn receives the Future so it can report progress and observe
// Release.
func Go[T any](cancel func(), fn func(f *Future[T]) (T, error)) *Future[T] {
	f := NewFuture[T](cancel)
	go func() {
		value, err := fn(f)
		f.Resolve(value, err)
	}()
	return f
}

// Completed returns an already resolved successful operation.
func Completed[T any](value T) *Future[T] {
	f := NewFuture[T](nil)
	f.Resolve(value, nil)
	return f
}

// Failed returns an already resolved failed operation.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T](nil)
	var zero T
	f.Resolve(zero, err)
	return f
}
