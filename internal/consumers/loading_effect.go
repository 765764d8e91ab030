package consumers

import (
	"time"

	"siro-hitl/client/internal/keyframe"
)

// FogFadeDuration is how long the scene takes to fade back in after a scene
// change finished loading.
const FogFadeDuration = 750 * time.Millisecond

// LoadEvents notifies when the loading set starts and stops being empty.
type LoadEvents interface {
	OnLoadStarted(fn func()) (cancel func())
	OnLoadFinished(fn func()) (cancel func())
}

// LoadingEffect darkens the scene with fog while a scene change loads and
// fades it back in once loading finishes. Loads outside a scene change leave
// the fog alone.
type LoadingEffect struct {
	changingScene bool
	loading       bool
	fadeRequested bool
	fading        bool
	fadeStart     time.Time
	fadeFrom      float32

	fogEnabled bool
	fogDensity float32

	cancels []func()
}

func NewLoadingEffect(events LoadEvents) *LoadingEffect {
	e := &LoadingEffect{}
	if events != nil {
		e.cancels = append(e.cancels,
			events.OnLoadStarted(e.loadStarted),
			events.OnLoadFinished(e.loadFinished),
		)
	}
	return e
}

func (e *LoadingEffect) ProcessMessage(msg *keyframe.Message) {
	if msg.SceneChanged {
		e.changingScene = true
	}
}

func (e *LoadingEffect) loadStarted() {
	e.loading = true
	if !e.changingScene {
		return
	}
	e.fogEnabled = true
	e.fogDensity = 1
	e.fading = false
	e.fadeRequested = false
}

func (e *LoadingEffect) loadFinished() {
	e.loading = false
	e.changingScene = false
	e.fadeRequested = true
}

// Update advances the fade. Load observers fire without a timestamp, so a
// requested fade starts on the next tick.
func (e *LoadingEffect) Update(now time.Time) {
	if e.fadeRequested {
		e.fadeRequested = false
		e.fading = true
		e.fadeStart = now
		e.fadeFrom = e.fogDensity
	}
	if !e.fading {
		return
	}
	elapsed := now.Sub(e.fadeStart)
	if elapsed >= FogFadeDuration {
		e.fading = false
		e.fogEnabled = false
		e.fogDensity = 0
		return
	}
	t := easeInCubic(float32(elapsed) / float32(FogFadeDuration))
	e.fogDensity = e.fadeFrom * (1 - t)
}

func easeInCubic(x float32) float32 {
	return x * x * x
}

// Fog reports whether fog is on and its density in [0, 1].
func (e *LoadingEffect) Fog() (enabled bool, density float32) {
	return e.fogEnabled, e.fogDensity
}

func (e *LoadingEffect) Loading() bool {
	return e.loading
}

// Close unsubscribes from load events.
func (e *LoadingEffect) Close() {
	for _, cancel := range e.cancels {
		cancel()
	}
	e.cancels = nil
}
