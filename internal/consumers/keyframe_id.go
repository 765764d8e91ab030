// Package consumers holds the keyframe message handlers that run next to the
// instance reconciler. Each handler keeps the latest state the server asked
// for so that a renderer, or a test, can read it back. All handlers are
// driven from the frame loop.
package consumers

import (
	"context"
	"time"

	"siro-hitl/client/internal/keyframe"
	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
)

// Deps carries shared infrastructure.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Frames    *logging.FrameCounter
}

type deps struct {
	logger  telemetry.Logger
	metrics telemetry.Metrics
	pub     logging.Publisher
	frames  *logging.FrameCounter
}

func newDeps(d Deps) deps {
	pub := d.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return deps{
		logger:  telemetry.OrDiscard(d.Logger),
		metrics: telemetry.MetricsOrNop(d.Metrics),
		pub:     pub,
		frames:  d.Frames,
	}
}

func (d deps) ctx() context.Context {
	return context.Background()
}

// KeyframeIDHandler remembers the id of the most recent server keyframe so
// the client can acknowledge it. A message without an id clears it.
type KeyframeIDHandler struct {
	recent *int
}

func NewKeyframeIDHandler() *KeyframeIDHandler {
	return &KeyframeIDHandler{}
}

func (h *KeyframeIDHandler) ProcessMessage(msg *keyframe.Message) {
	if msg.ServerKeyframeID == nil {
		h.recent = nil
		return
	}
	id := *msg.ServerKeyframeID
	h.recent = &id
}

func (h *KeyframeIDHandler) Update(time.Time) {}

// RecentServerKeyframeID returns a copy of the latest id, or nil.
func (h *KeyframeIDHandler) RecentServerKeyframeID() *int {
	if h.recent == nil {
		return nil
	}
	id := *h.recent
	return &id
}

// Reset forgets the latest id. Called when a new connection opens.
func (h *KeyframeIDHandler) Reset() {
	h.recent = nil
}
