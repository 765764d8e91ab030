// Package interp smooths instance poses between keyframes.
package interp

import (
	"time"

	"cogentcore.org/core/math32"

	"siro-hitl/client/internal/coords"
)

const (
	// MinKeyframeRate and MaxKeyframeRate bound the rate used to derive the
	// interpolation interval.
	MinKeyframeRate = 10.0
	MaxKeyframeRate = 30.0
	// DefaultInterval applies until a keyframe rate has been observed.
	DefaultInterval = 100 * time.Millisecond
)

// Record is an in-flight interpolation toward the latest pose of one instance.
type Record struct {
	StartPos  math32.Vector3
	EndPos    math32.Vector3
	StartRot  math32.Quat
	EndRot    math32.Quat
	StartTime time.Time
}

// Interpolator holds at most one Record per instance key.
type Interpolator struct {
	enabled  bool
	interval time.Duration
	records  map[int]*Record
}

func New(enabled bool) *Interpolator {
	return &Interpolator{
		enabled:  enabled,
		interval: DefaultInterval,
		records:  make(map[int]*Record),
	}
}

func (i *Interpolator) Enabled() bool {
	return i != nil && i.enabled
}

// Interval is the time an interpolation takes to reach its target.
func (i *Interpolator) Interval() time.Duration {
	return i.interval
}

// SetKeyframeRate derives the interval from the observed rate of inbound
// keyframes, clamped to [MinKeyframeRate, MaxKeyframeRate] per second.
func (i *Interpolator) SetKeyframeRate(hz float64) {
	if hz <= 0 {
		return
	}
	hz = min(max(hz, MinKeyframeRate), MaxKeyframeRate)
	i.interval = time.Duration(float64(time.Second) / hz)
}

// Begin starts interpolating key from current to target. It returns false
// when the caller should apply target immediately instead: interpolation is
// disabled, or the instance has never left the origin.
func (i *Interpolator) Begin(key int, current, target coords.Transform, now time.Time) bool {
	if !i.Enabled() {
		return false
	}
	if current.Position == (math32.Vector3{}) {
		delete(i.records, key)
		return false
	}
	i.records[key] = &Record{
		StartPos:  current.Position,
		EndPos:    target.Position,
		StartRot:  current.Rotation,
		EndRot:    target.Rotation,
		StartTime: now,
	}
	return true
}

// Advance applies the interpolated pose of every record at now. Records that
// reach their end snap to the end pose and are dropped.
func (i *Interpolator) Advance(now time.Time, apply func(key int, t coords.Transform)) {
	for key, record := range i.records {
		t := float32(1)
		if i.interval > 0 {
			t = float32(now.Sub(record.StartTime)) / float32(i.interval)
		}
		if t >= 1 {
			apply(key, coords.Transform{Position: record.EndPos, Rotation: record.EndRot})
			delete(i.records, key)
			continue
		}
		t = max(t, 0)
		rot := record.StartRot
		rot.Slerp(record.EndRot, t)
		apply(key, coords.Transform{Position: record.StartPos.Lerp(record.EndPos, t), Rotation: rot})
	}
}

// Pending returns the record for key, if any.
func (i *Interpolator) Pending(key int) (Record, bool) {
	record, ok := i.records[key]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

func (i *Interpolator) Len() int {
	return len(i.records)
}

// Drop forgets key. Deleted instances must not be written to afterwards.
func (i *Interpolator) Drop(key int) {
	delete(i.records, key)
}

func (i *Interpolator) Clear() {
	clear(i.records)
}
