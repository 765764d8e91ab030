package app

import (
	"maps"
	"math/rand/v2"
	"time"

	"siro-hitl/client/internal/clientstate"
	"siro-hitl/client/internal/config"
	"siro-hitl/client/internal/net/params"
	"siro-hitl/client/internal/net/ws"
	"siro-hitl/client/internal/observability"
	"siro-hitl/client/internal/telemetry"
)

// SessionConfig selects the servers a live session talks to.
type SessionConfig struct {
	URLs []string
	// StartIndex picks the first candidate; negative selects one at random.
	StartIndex int
	Params     params.Params
	Dialer     ws.Dialer
}

// Session couples a Runtime to a server connection: inbound keyframes feed
// the reconciler and client states flow back on the emitter cadence.
type Session struct {
	*Runtime

	Transport *ws.Client
	Emitter   *clientstate.Emitter
	Rate      *RateMonitor

	logger telemetry.Logger
	now    time.Time
}

func NewSession(cfg config.Config, sc SessionConfig, rt *Runtime, deps Deps) (*Session, error) {
	s := &Session{Runtime: rt, logger: telemetry.OrDiscard(deps.Logger)}

	start := sc.StartIndex
	if start < 0 && len(sc.URLs) > 0 {
		start = rand.IntN(len(sc.URLs))
	}
	var metrics telemetry.Metrics
	if deps.Metrics != nil {
		metrics = telemetry.WrapMetrics(deps.Metrics)
	}

	transport, err := ws.NewClient(ws.Config{
		URLs:       sc.URLs,
		StartIndex: start,
		Params:     maps.Clone(sc.Params),
		Dialer:     sc.Dialer,
		Hooks: ws.Hooks{
			OnOpen:         s.onOpen,
			OnSessionStart: rt.Player.Clear,
			OnMessage:      s.onMessage,
			OnTerminate:    rt.Player.Clear,
			OnStatus:       rt.Canvas.SetStatus,
		},
		Logger:    deps.Logger,
		Metrics:   metrics,
		Publisher: deps.Publisher,
		Frames:    deps.Frames,
	})
	if err != nil {
		return nil, err
	}
	s.Transport = transport
	s.Emitter = clientstate.NewEmitter(clientstate.EmitterConfig{
		Sender:      transport,
		KeyframeIDs: rt.KeyframeIDs,
		Loading:     rt.Tracker,
		Producers:   rt.Producers(),
		Params:      maps.Clone(sc.Params),
		Interval:    cfg.Replay.SendInterval,
		Logger:      deps.Logger,
		Metrics:     metrics,
		Publisher:   deps.Publisher,
		Frames:      deps.Frames,
	})
	s.Rate = NewRateMonitor(cfg.Replay.MessageRateWindow, transport, rt.Player, deps.Logger, deps.Publisher, deps.Frames)
	return s, nil
}

func (s *Session) onOpen() {
	s.KeyframeIDs.Reset()
	s.Emitter.OnConnectionOpened()
}

func (s *Session) onMessage(data []byte) {
	// Errors are already logged and counted by the runtime.
	_ = s.ProcessPayload(data, s.now)
}

// Frame runs one frame: transport, reconciler, then the outbound state.
func (s *Session) Frame(now time.Time) {
	s.now = now
	s.Transport.Update(now)
	s.Runtime.Update(now)
	s.Emitter.Update(now)
	s.Rate.Update(now)
}

// Sample extends the runtime gauges with connection state.
func (s *Session) Sample() observability.Sample {
	sample := s.Runtime.Sample()
	sample.Connected = s.Transport.IsConnected()
	sample.KeyframeRate = s.Rate.Rate()
	return sample
}

func (s *Session) Close() {
	s.Transport.Close()
	s.Runtime.Close()
}
