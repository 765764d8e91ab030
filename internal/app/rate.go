package app

import (
	"context"
	"time"

	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
	netlog "siro-hitl/client/logging/network"
)

// MessageSource reports connectivity and hands out the number of messages
// received since the previous call.
type MessageSource interface {
	IsConnected() bool
	TakeReceived() int
}

// RateSink receives the measured keyframe rate.
type RateSink interface {
	SetKeyframeRate(hz float64)
}

// RateMonitor measures the inbound message rate and frame rate over a fixed
// window. While messages arrive the message rate becomes the keyframe rate
// used for interpolation.
type RateMonitor struct {
	window  time.Duration
	source  MessageSource
	sink    RateSink
	logger  telemetry.Logger
	pub     logging.Publisher
	frames  *logging.FrameCounter
	started time.Time

	frameCount   int
	messageCount int
	rate         float64
}

func NewRateMonitor(window time.Duration, source MessageSource, sink RateSink, logger telemetry.Logger, pub logging.Publisher, frames *logging.FrameCounter) *RateMonitor {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &RateMonitor{
		window: window,
		source: source,
		sink:   sink,
		logger: telemetry.OrDiscard(logger),
		pub:    pub,
		frames: frames,
	}
}

// Rate is the keyframe rate measured over the last completed window.
func (m *RateMonitor) Rate() float64 { return m.rate }

// Update counts one frame and reports once a window has elapsed.
func (m *RateMonitor) Update(now time.Time) {
	if m.started.IsZero() {
		m.started = now
	}
	m.frameCount++
	m.messageCount += m.source.TakeReceived()

	elapsed := now.Sub(m.started)
	if elapsed < m.window {
		return
	}
	seconds := elapsed.Seconds()
	fps := float64(m.frameCount) / seconds
	messages := float64(m.messageCount) / seconds
	if m.source.IsConnected() && m.messageCount > 0 {
		m.rate = messages
		m.logger.Printf("[network] message rate: %.1f, fps: %.1f", m.rate, fps)
		if m.sink != nil {
			m.sink.SetKeyframeRate(m.rate)
		}
	} else {
		m.logger.Printf("[network] disconnected, fps: %.1f", fps)
	}
	netlog.MessageRate(context.Background(), m.pub, m.frames.Frame(), logging.EntityRef{}, netlog.RatePayload{
		MessagesPerSecond: messages,
		FramesPerSecond:   fps,
	}, nil)

	m.started = now
	m.frameCount = 0
	m.messageCount = 0
}
