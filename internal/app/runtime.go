package app

import (
	"context"
	"fmt"
	"time"

	"siro-hitl/client/internal/assets"
	"siro-hitl/client/internal/clientstate"
	"siro-hitl/client/internal/config"
	"siro-hitl/client/internal/consumers"
	"siro-hitl/client/internal/coords"
	"siro-hitl/client/internal/interp"
	"siro-hitl/client/internal/keyframe"
	"siro-hitl/client/internal/observability"
	"siro-hitl/client/internal/progress"
	"siro-hitl/client/internal/replay"
	"siro-hitl/client/internal/scene"
	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
	loadinglog "siro-hitl/client/logging/loading"
	replaylog "siro-hitl/client/logging/replay"
)

// Key codes above the last key a keyboard can report are ignored.
const maxKeyCode = 512

// Deps carries the infrastructure shared by every component of a run.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   *logging.Metrics
	Publisher logging.Publisher
	Frames    *logging.FrameCounter
}

// Runtime owns the reconciler, its message consumers and the input
// producers. It is the part of the client shared by live sessions and file
// replay, and must only be used from the frame loop.
type Runtime struct {
	logger  telemetry.Logger
	metrics telemetry.Metrics
	pub     logging.Publisher
	frames  *logging.FrameCounter

	Tracker *progress.Tracker
	Host    scene.Host
	Player  *replay.Player

	KeyframeIDs   *consumers.KeyframeIDHandler
	Viewports     *consumers.ViewportHandler
	Objects       *consumers.ObjectPropertiesHandler
	Outlines      *consumers.OutlineHandler
	DebugDraw     *consumers.DebugDrawHandler
	Text          *consumers.TextHandler
	Canvas        *consumers.CanvasManager
	Dialog        *consumers.DialogHandler
	LoadingEffect *consumers.LoadingEffect
	Avatar        *clientstate.AvatarTracker
	Mouse         *clientstate.MouseTracker
	Keyboard      *clientstate.KeyboardTracker

	cancels []func()
}

// NewRuntime builds the reconciler against resolver and host. A nil host
// selects the headless scene graph.
func NewRuntime(cfg config.Config, resolver assets.Resolver, host scene.Host, deps Deps) *Runtime {
	if host == nil {
		host = scene.NewGraph()
	}
	pub := deps.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	var metrics telemetry.Metrics
	if deps.Metrics != nil {
		metrics = telemetry.WrapMetrics(deps.Metrics)
	}
	converter := coords.Habitat{}
	tracker := progress.NewTracker()

	r := &Runtime{
		logger:  telemetry.OrDiscard(deps.Logger),
		metrics: telemetry.MetricsOrNop(metrics),
		pub:     pub,
		frames:  deps.Frames,
		Tracker: tracker,
		Host:    host,
	}
	r.Player = replay.NewPlayer(replay.Config{
		Host:      host,
		Resolver:  resolver,
		Tracker:   tracker,
		Interp:    interp.New(cfg.Replay.Interpolation),
		Converter: converter,
		Deps: replay.Deps{
			Logger:    deps.Logger,
			Metrics:   metrics,
			Publisher: pub,
			Frames:    deps.Frames,
		},
	})

	consumerDeps := consumers.Deps{
		Logger:    deps.Logger,
		Metrics:   metrics,
		Publisher: pub,
		Frames:    deps.Frames,
	}
	r.KeyframeIDs = consumers.NewKeyframeIDHandler()
	r.Viewports = consumers.NewViewportHandler(converter, consumerDeps)
	r.Objects = consumers.NewObjectPropertiesHandler(r.Player, r.Viewports, consumerDeps)
	r.Outlines = consumers.NewOutlineHandler(r.Player)
	r.DebugDraw = consumers.NewDebugDrawHandler(converter, consumers.DebugDrawConfig{
		LinePoolSize:   cfg.DebugDraw.LinePoolSize,
		CirclePoolSize: cfg.DebugDraw.CirclePoolSize,
	}, consumerDeps)
	r.Text = consumers.NewTextHandler(converter, tracker)
	r.Canvas = consumers.NewCanvasManager(tracker, consumerDeps)
	r.Dialog = consumers.NewDialogHandler(tracker)
	r.LoadingEffect = consumers.NewLoadingEffect(tracker)
	r.Avatar = clientstate.NewAvatarTracker(converter, deps.Logger)
	r.Mouse = clientstate.NewMouseTracker(converter, tracker)
	r.Keyboard = clientstate.NewKeyboardTracker(maxKeyCode, tracker)

	for _, c := range []replay.MessageConsumer{
		r.KeyframeIDs,
		r.Viewports,
		r.Objects,
		r.Outlines,
		r.DebugDraw,
		r.Text,
		r.Canvas,
		r.Dialog,
		r.LoadingEffect,
		r.Avatar,
	} {
		r.Player.AddConsumer(c)
	}

	r.cancels = append(r.cancels,
		r.Player.OnRemoved(r.Objects.Forget),
		r.Player.OnCleared(r.Objects.Reset),
		tracker.OnLoadStarted(func() {
			loadinglog.BatchStarted(context.Background(), r.pub, r.frames.Frame(), r.batch(), nil)
		}),
		tracker.OnLoadFinished(func() {
			batch := r.batch()
			r.logger.Printf("[loading] finished: %d succeeded, %d failed", batch.Succeeded, batch.Failed)
			loadinglog.BatchFinished(context.Background(), r.pub, r.frames.Frame(), batch, nil)
		}),
	)
	return r
}

func (r *Runtime) batch() loadinglog.BatchPayload {
	return loadinglog.BatchPayload{
		Succeeded: r.Tracker.SuccessCount(),
		Failed:    r.Tracker.FailureCount(),
	}
}

// Producers lists the contributors to every outbound client state.
func (r *Runtime) Producers() []clientstate.Producer {
	return []clientstate.Producer{r.Mouse, r.Keyboard, r.Avatar, r.Canvas, r.Dialog}
}

// ProcessKeyframe applies one keyframe to the reconciler.
func (r *Runtime) ProcessKeyframe(kf keyframe.Keyframe, now time.Time) {
	r.Player.ProcessKeyframe(kf, now)
}

// ProcessPayload decodes one inbound message and applies its keyframes in
// order. A malformed payload is rejected whole.
func (r *Runtime) ProcessPayload(data []byte, now time.Time) error {
	keyframes, err := keyframe.Decode(data)
	if err != nil {
		r.metrics.Add(telemetry.MetricKeyframesRejected, 1)
		r.logger.Printf("[replay] dropping message: %v", err)
		replaylog.DecodeFailed(context.Background(), r.pub, r.frames.Frame(), replaylog.ErrorPayload{Error: err.Error()}, nil)
		return fmt.Errorf("process payload: %w", err)
	}
	for _, kf := range keyframes {
		r.Player.ProcessKeyframe(kf, now)
	}
	return nil
}

// Update advances loads, interpolation and consumers.
func (r *Runtime) Update(now time.Time) {
	r.Player.Update(now)
}

// Sample reads the gauges exported to Prometheus.
func (r *Runtime) Sample() observability.Sample {
	return observability.Sample{
		LoadProgress:     float64(r.Tracker.EstimateProgress()),
		LoadingInstances: r.Tracker.LoadingCount(),
		LiveInstances:    r.Player.InstanceCount(),
	}
}

// Close detaches tracker observers.
func (r *Runtime) Close() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
	r.LoadingEffect.Close()
}
