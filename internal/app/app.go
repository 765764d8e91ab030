// Package app assembles the client: logging, the reconciler with its
// consumers, the server session and the frame loop that drives them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"siro-hitl/client/internal/assets"
	"siro-hitl/client/internal/config"
	"siro-hitl/client/internal/net/ws"
	"siro-hitl/client/internal/observability"
	"siro-hitl/client/internal/replayfile"
	"siro-hitl/client/internal/scene"
	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
	loggingSinks "siro-hitl/client/logging/sinks"
)

// Options configure one client run. Zero values select production
// collaborators.
type Options struct {
	Config config.Config
	// Params are merged over the connection parameters of the page URL.
	Params map[string]string
	Logger telemetry.Logger
	// Stdout receives the console sink and, without a JSON path, the JSON
	// sink.
	Stdout io.Writer

	Dialer   ws.Dialer
	Resolver assets.Resolver
	Host     scene.Host
	Clock    logging.Clock
	// StartIndex overrides the random first candidate when set.
	StartIndex *int
	// AfterFrame observes every frame of the loop.
	AfterFrame func(FrameResult)
}

func (o Options) logger() telemetry.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return telemetry.WrapLogger(log.Default())
}

func (o Options) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}

// Run connects to the configured servers and runs the frame loop until ctx
// is cancelled.
func Run(ctx context.Context, opts Options) error {
	logger := opts.logger()
	cfg := opts.Config

	router, closeRouter, err := newRouter(cfg, opts)
	if err != nil {
		return err
	}
	defer closeRouter(logger)

	metrics := &logging.Metrics{}
	deps := Deps{
		Logger:    logger,
		Metrics:   metrics,
		Publisher: router,
		Frames:    &logging.FrameCounter{},
	}

	connParams := cfg.ConnectionParams().Clone()
	maps.Copy(connParams, opts.Params)

	urls, err := cfg.Candidates(connParams)
	if err != nil {
		logger.Printf("invalid server parameters: %v", err)
	}
	resolver := opts.Resolver
	if resolver == nil {
		server, err := cfg.AssetServerFor(connParams)
		if err != nil {
			logger.Printf("invalid asset parameters: %v", err)
		}
		resolver = assets.NewHTTPResolver(server, &http.Client{Timeout: 2 * time.Minute})
	}

	rt := NewRuntime(cfg, resolver, opts.Host, deps)
	start := -1
	if opts.StartIndex != nil {
		start = *opts.StartIndex
	}
	session, err := NewSession(cfg, SessionConfig{
		URLs:       urls,
		StartIndex: start,
		Params:     connParams,
		Dialer:     opts.Dialer,
	}, rt, deps)
	if err != nil {
		rt.Close()
		return fmt.Errorf("failed to construct session: %w", err)
	}
	defer session.Close()

	logger.Printf("client connecting to %d candidate(s)", len(urls))
	return supervise(ctx, cfg, opts, deps, router, session.Frame, session.Sample)
}

// RunReplay plays the keyframe file at path through the reconciler. It
// returns once the file is exhausted and no asset is loading, or when ctx is
// cancelled.
func RunReplay(ctx context.Context, opts Options, path string) error {
	logger := opts.logger()
	cfg := opts.Config

	file, err := replayfile.Load(path)
	if err != nil {
		return err
	}

	router, closeRouter, err := newRouter(cfg, opts)
	if err != nil {
		return err
	}
	defer closeRouter(logger)

	metrics := &logging.Metrics{}
	deps := Deps{
		Logger:    logger,
		Metrics:   metrics,
		Publisher: router,
		Frames:    &logging.FrameCounter{},
	}
	resolver := opts.Resolver
	if resolver == nil {
		server, err := cfg.AssetServerFor(cfg.ConnectionParams())
		if err != nil {
			logger.Printf("invalid asset parameters: %v", err)
		}
		resolver = assets.NewHTTPResolver(server, nil)
	}

	rt := NewRuntime(cfg, resolver, opts.Host, deps)
	defer rt.Close()
	player := replayfile.NewPlayer(file, rt, cfg.Replay.FileInterval, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	step := func(now time.Time) {
		if cfg.Replay.FileInterval > 0 {
			player.Update(now)
		} else {
			player.Step(now)
		}
		rt.Update(now)
		if player.Done() && !rt.Tracker.IsLoading() {
			cancel()
		}
	}
	err = supervise(runCtx, cfg, opts, deps, router, step, rt.Sample)
	if err == nil {
		played, total := player.Position()
		logger.Printf("replay finished: %d/%d keyframes, %d instances", played, total, rt.Player.InstanceCount())
	}
	return err
}

// supervise runs the frame loop next to the metrics exporter. Either one
// failing stops both.
func supervise(ctx context.Context, cfg config.Config, opts Options, deps Deps, router *logging.Router, step func(time.Time), sample func() observability.Sample) error {
	gauges := &observability.Gauges{}
	statsEvery := uint64(max(cfg.Replay.FrameRate, 1))
	loop := NewLoop(LoopConfig{
		FrameRate: cfg.Replay.FrameRate,
		Clock:     opts.Clock,
		Frames:    deps.Frames,
		Metrics:   telemetry.WrapMetrics(deps.Metrics),
	}, step, LoopHooks{
		AfterFrame: func(result FrameResult) {
			gauges.Set(sample())
			if result.Frame%statsEvery == 0 {
				deps.Metrics.TelemetryStore(telemetry.MetricEventsDropped, router.Stats().Dropped())
			}
			if opts.AfterFrame != nil {
				opts.AfterFrame(result)
			}
		},
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return loop.Run(groupCtx)
	})
	group.Go(func() error {
		registry := observability.NewRegistry(deps.Metrics, gauges)
		return observability.Serve(groupCtx, observability.Config{MetricsAddr: cfg.MetricsAddr}, registry, deps.Logger)
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newRouter builds the structured event router from the logging section.
func newRouter(cfg config.Config, opts Options) (*logging.Router, func(telemetry.Logger), error) {
	logConfig := cfg.LoggingConfig()
	var named []logging.NamedSink
	var file *os.File
	if logConfig.HasSink("console") {
		named = append(named, logging.NamedSink{
			Name:        "console",
			Sink:        loggingSinks.NewConsole(opts.stdout()),
			MinSeverity: logConfig.SeverityFor("console"),
		})
	}
	if logConfig.HasSink("json") {
		var w io.Writer = opts.stdout()
		if logConfig.JSON.FilePath != "" {
			f, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to open event log: %w", err)
			}
			file = f
			w = f
		}
		named = append(named, logging.NamedSink{
			Name:        "json",
			Sink:        loggingSinks.NewJSON(w, logConfig.JSON.FlushInterval),
			MinSeverity: logConfig.SeverityFor("json"),
		})
	}

	router := logging.NewRouter(opts.Clock, logConfig, named)
	closeRouter := func(logger telemetry.Logger) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := router.Close(ctx); err != nil {
			logger.Printf("failed to close logging router: %v", err)
		}
		if file != nil {
			if err := file.Close(); err != nil {
				logger.Printf("failed to close event log: %v", err)
			}
		}
	}
	return router, closeRouter, nil
}
