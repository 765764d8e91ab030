package app

import (
	"context"
	"time"

	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
)

const defaultFrameRate = 60

// LoopConfig tunes the fixed-rate frame loop.
type LoopConfig struct {
	FrameRate int
	Clock     logging.Clock
	Frames    *logging.FrameCounter
	Metrics   telemetry.Metrics
}

// FrameResult describes one completed frame.
type FrameResult struct {
	Frame    uint64
	Now      time.Time
	Duration time.Duration
	Budget   time.Duration
	Overrun  bool
}

// LoopHooks observe the frame loop.
type LoopHooks struct {
	AfterFrame func(FrameResult)
}

// Loop calls step once per tick on a single goroutine. Every component that
// step touches relies on that goroutine being the only writer.
type Loop struct {
	cfg     LoopConfig
	step    func(now time.Time)
	hooks   LoopHooks
	metrics telemetry.Metrics
}

func NewLoop(cfg LoopConfig, step func(now time.Time), hooks LoopHooks) *Loop {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = defaultFrameRate
	}
	if cfg.Clock == nil {
		cfg.Clock = logging.SystemClock{}
	}
	return &Loop{
		cfg:     cfg,
		step:    step,
		hooks:   hooks,
		metrics: telemetry.MetricsOrNop(cfg.Metrics),
	}
}

// Budget is the duration of one frame.
func (l *Loop) Budget() time.Duration {
	return time.Second / time.Duration(l.cfg.FrameRate)
}

// Frame runs a single frame at the current clock time.
func (l *Loop) Frame() FrameResult {
	now := l.cfg.Clock.Now()
	frame := l.cfg.Frames.Advance()
	l.step(now)

	result := FrameResult{
		Frame:    frame,
		Now:      now,
		Duration: l.cfg.Clock.Now().Sub(now),
		Budget:   l.Budget(),
	}
	if result.Duration > result.Budget {
		result.Overrun = true
		l.metrics.Add(telemetry.MetricFrameOverruns, 1)
	}
	if l.hooks.AfterFrame != nil {
		l.hooks.AfterFrame(result)
	}
	return result
}

// Run ticks until ctx is cancelled. Ticks missed while a frame overran are
// dropped rather than replayed.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Budget())
	defer ticker.Stop()

	l.Frame()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Frame()
		}
	}
}
