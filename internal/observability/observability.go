// Package observability exports client counters and frame-loop gauges to
// Prometheus.
package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
)

const namespace = "hitl_client"

// Config captures opt-in observability toggles. An empty MetricsAddr
// disables the exporter.
type Config struct {
	MetricsAddr string
}

// Sample is the frame-loop state published as gauges.
type Sample struct {
	LoadProgress     float64
	LoadingInstances int
	LiveInstances    int
	Connected        bool
	KeyframeRate     float64
}

// Gauges hands the latest Sample from the frame loop to scrapes.
type Gauges struct {
	mu     sync.Mutex
	sample Sample
}

func (g *Gauges) Set(s Sample) {
	g.mu.Lock()
	g.sample = s
	g.mu.Unlock()
}

func (g *Gauges) Sample() Sample {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sample
}

// Collector mirrors a logging.Metrics registry and the gauges.
type Collector struct {
	metrics *logging.Metrics
	gauges  *Gauges

	counterDesc   *prometheus.Desc
	progressDesc  *prometheus.Desc
	loadingDesc   *prometheus.Desc
	instancesDesc *prometheus.Desc
	connectedDesc *prometheus.Desc
	rateDesc      *prometheus.Desc
}

func NewCollector(metrics *logging.Metrics, gauges *Gauges) *Collector {
	if gauges == nil {
		gauges = &Gauges{}
	}
	return &Collector{
		metrics: metrics,
		gauges:  gauges,
		counterDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "metric"),
			"Counters and stored values of the client metrics registry.",
			[]string{"name"}, nil,
		),
		progressDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "load", "progress_ratio"),
			"Mean progress of the assets currently loading.",
			nil, nil,
		),
		loadingDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "load", "instances"),
			"Instances whose asset is loading.",
			nil, nil,
		),
		instancesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "instances"),
			"Live replay instances.",
			nil, nil,
		),
		connectedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "connected"),
			"1 while a server connection is open.",
			nil, nil,
		),
		rateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "keyframe_rate_hz"),
			"Keyframe rate measured over the last window.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.counterDesc
	ch <- c.progressDesc
	ch <- c.loadingDesc
	ch <- c.instancesDesc
	ch <- c.connectedDesc
	ch <- c.rateDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.metrics != nil {
		for name, value := range c.metrics.Snapshot() {
			ch <- prometheus.MustNewConstMetric(c.counterDesc, prometheus.UntypedValue, float64(value), name)
		}
	}
	s := c.gauges.Sample()
	connected := 0.0
	if s.Connected {
		connected = 1
	}
	ch <- prometheus.MustNewConstMetric(c.progressDesc, prometheus.GaugeValue, s.LoadProgress)
	ch <- prometheus.MustNewConstMetric(c.loadingDesc, prometheus.GaugeValue, float64(s.LoadingInstances))
	ch <- prometheus.MustNewConstMetric(c.instancesDesc, prometheus.GaugeValue, float64(s.LiveInstances))
	ch <- prometheus.MustNewConstMetric(c.connectedDesc, prometheus.GaugeValue, connected)
	ch <- prometheus.MustNewConstMetric(c.rateDesc, prometheus.GaugeValue, s.KeyframeRate)
}

// NewRegistry registers the client collector next to the Go runtime
// collector.
func NewRegistry(metrics *logging.Metrics, gauges *Gauges) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		NewCollector(metrics, gauges),
		collectors.NewGoCollector(),
	)
	return registry
}

// Handler serves the registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on cfg.MetricsAddr until ctx is cancelled. It
// returns immediately when no address is configured.
func Serve(ctx context.Context, cfg Config, registry *prometheus.Registry, logger telemetry.Logger) error {
	if cfg.MetricsAddr == "" {
		return nil
	}
	logger = telemetry.OrDiscard(logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(registry))
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("[metrics] listening on %s", cfg.MetricsAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("[metrics] shutdown: %v", err)
		}
		return nil
	}
}
