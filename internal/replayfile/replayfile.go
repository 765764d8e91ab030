// Package replayfile plays a recorded keyframe file through the reconciler
// without a server.
package replayfile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"siro-hitl/client/internal/keyframe"
	"siro-hitl/client/internal/telemetry"
)

var ErrEmpty = errors.New("replayfile: no keyframes")

// File is a decoded keyframe recording.
type File struct {
	Path      string
	Keyframes []keyframe.Keyframe
}

// Load reads and decodes the keyframe wrapper at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read replay %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes a keyframe wrapper already in memory. name is only used in
// errors.
func Parse(name string, data []byte) (File, error) {
	wrapper, err := keyframe.DecodeWrapper(data)
	if err != nil {
		return File{}, fmt.Errorf("decode replay %s: %w", name, err)
	}
	if len(wrapper.Keyframes) == 0 {
		return File{}, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	return File{Path: name, Keyframes: wrapper.Keyframes}, nil
}

// Sink receives keyframes in file order.
type Sink interface {
	ProcessKeyframe(kf keyframe.Keyframe, now time.Time)
}

// Player feeds a recording to a Sink. The first keyframe plays on the first
// Update. After that, keyframes advance every Interval, or only on Step when
// Interval is zero.
type Player struct {
	file     File
	sink     Sink
	interval time.Duration
	logger   telemetry.Logger

	next   int
	nextAt time.Time
}

func NewPlayer(file File, sink Sink, interval time.Duration, logger telemetry.Logger) *Player {
	return &Player{
		file:     file,
		sink:     sink,
		interval: interval,
		logger:   telemetry.OrDiscard(logger),
	}
}

func (p *Player) Update(now time.Time) {
	if p.next == 0 {
		p.Step(now)
		return
	}
	if p.interval <= 0 || p.Done() {
		return
	}
	if !now.Before(p.nextAt) {
		p.Step(now)
	}
}

// Step plays the next keyframe. It reports false once the recording is
// exhausted.
func (p *Player) Step(now time.Time) bool {
	if p.Done() {
		return false
	}
	idx := p.next
	p.sink.ProcessKeyframe(p.file.Keyframes[idx], now)
	p.next++
	p.nextAt = now.Add(p.interval)
	p.logger.Printf("[replay] processed keyframe %d/%d from %s", idx+1, len(p.file.Keyframes), p.file.Path)
	return true
}

func (p *Player) Done() bool {
	return p.next >= len(p.file.Keyframes)
}

// Position returns how many keyframes were played and the total.
func (p *Player) Position() (played, total int) {
	return p.next, len(p.file.Keyframes)
}
