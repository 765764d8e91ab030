package clientstate

import (
	"context"
	"encoding/json"
	"time"

	"siro-hitl/client/internal/async"
	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
	netlog "siro-hitl/client/logging/network"
)

// DefaultInterval is the target time between transmissions.
const DefaultInterval = 100 * time.Millisecond

// Sender is the transport.
type Sender interface {
	IsConnected() bool
	Send(data []byte) async.Operation[struct{}]
}

// KeyframeIDSource reports the most recent keyframe id received from the
// server, or nil.
type KeyframeIDSource interface {
	RecentServerKeyframeID() *int
}

type LoadingSource interface {
	IsLoading() bool
}

type EmitterConfig struct {
	Sender      Sender
	KeyframeIDs KeyframeIDSource
	Loading     LoadingSource
	Producers   []Producer
	// Params are attached to the first transmission of each connection.
	Params   map[string]string
	Interval time.Duration

	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Frames    *logging.FrameCounter
}

type emitterPhase int

const (
	phaseWaiting emitterPhase = iota
	phaseAwaiting
)

// Emitter sends one state per cycle and never overlaps sends. A cycle that
// spent time awaiting its send waits correspondingly less before the next.
type Emitter struct {
	cfg     EmitterConfig
	logger  telemetry.Logger
	metrics telemetry.Metrics

	phase             emitterPhase
	nextAt            time.Time
	cycleStart        time.Time
	pending           async.Operation[struct{}]
	firstTransmission bool
	sent              int
}

func NewEmitter(cfg EmitterConfig) *Emitter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Emitter{
		cfg:               cfg,
		logger:            telemetry.OrDiscard(cfg.Logger),
		metrics:           telemetry.MetricsOrNop(cfg.Metrics),
		firstTransmission: true,
	}
}

// OnConnectionOpened re-arms the one-time connection parameters.
func (e *Emitter) OnConnectionOpened() {
	e.firstTransmission = true
}

// FirstTransmission reports whether the next successful send will be the
// first one of the current connection.
func (e *Emitter) FirstTransmission() bool { return e.firstTransmission }

// Sent counts successful transmissions.
func (e *Emitter) Sent() int { return e.sent }

// Snapshot builds the state that a cycle starting now would send.
func (e *Emitter) Snapshot() *State {
	state := &State{}
	if e.cfg.Loading != nil {
		state.IsLoading = e.cfg.Loading.IsLoading()
	}
	for _, p := range e.cfg.Producers {
		p.UpdateClientState(state)
	}
	if e.cfg.KeyframeIDs != nil {
		if id := e.cfg.KeyframeIDs.RecentServerKeyframeID(); id != nil {
			value := *id
			state.RecentServerKeyframeID = &value
		}
	}
	if e.firstTransmission && len(e.cfg.Params) > 0 {
		state.ConnectionParamsDict = e.cfg.Params
	}
	return state
}

func (e *Emitter) Update(now time.Time) {
	switch e.phase {
	case phaseWaiting:
		if now.Before(e.nextAt) {
			return
		}
		e.cycleStart = now
		if e.cfg.Sender == nil || !e.cfg.Sender.IsConnected() {
			e.scheduleNext(now)
			return
		}
		data, err := json.Marshal(e.Snapshot())
		if err != nil {
			e.logger.Printf("[network] unable to serialize client state: %v", err)
			e.scheduleNext(now)
			return
		}
		e.pending = e.cfg.Sender.Send(data)
		e.phase = phaseAwaiting
		fallthrough
	case phaseAwaiting:
		if !e.pending.Done() {
			return
		}
		_, err := e.pending.Result()
		e.pending.Release()
		e.pending = nil
		if err != nil {
			e.logger.Printf("[network] client state not sent: %v", err)
			netlog.SendFailed(context.Background(), e.cfg.Publisher, e.cfg.Frames.Frame(), logging.EntityRef{Kind: logging.EntityKindClient}, netlog.FailurePayload{Error: err.Error()}, nil)
			e.metrics.Add(telemetry.MetricClientStateFailures, 1)
		} else {
			for _, p := range e.cfg.Producers {
				p.EndCycle()
			}
			e.firstTransmission = false
			e.sent++
			e.metrics.Add(telemetry.MetricClientStatesSent, 1)
		}
		e.scheduleNext(now)
	}
}

func (e *Emitter) scheduleNext(now time.Time) {
	elapsed := min(now.Sub(e.cycleStart), e.cfg.Interval)
	e.nextAt = now.Add(e.cfg.Interval - elapsed)
	e.phase = phaseWaiting
}
