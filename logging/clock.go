package logging

import (
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads wall time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FrameCounter numbers client frames so events can be correlated with the
// loop iteration that produced them. A nil counter reports frame zero.
type FrameCounter struct {
	value atomic.Uint64
}

func (c *FrameCounter) Frame() uint64 {
	if c == nil {
		return 0
	}
	return c.value.Load()
}

// Advance increments the counter and returns the new frame index.
func (c *FrameCounter) Advance() uint64 {
	if c == nil {
		return 0
	}
	return c.value.Add(1)
}
