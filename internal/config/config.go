// Package config loads client settings: defaults, then an optional YAML
// file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"siro-hitl/client/internal/assets"
	"siro-hitl/client/internal/consumers"
	"siro-hitl/client/internal/net/params"
	"siro-hitl/client/internal/telemetry"
	"siro-hitl/client/logging"
)

const (
	EnvServerLocations = "HITL_SERVER_LOCATIONS"
	EnvPageURL         = "HITL_PAGE_URL"
	EnvInterpolation   = "HITL_INTERPOLATION"
	EnvMetricsAddr     = "HITL_METRICS_ADDR"
	EnvFrameRate       = "HITL_FRAME_RATE"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	// ServerLocations are "host" or "host:port" entries. Entries without a
	// port expand over the server port range.
	ServerLocations   []string            `yaml:"serverLocations"`
	DefaultServerPort int                 `yaml:"defaultServerPort"`
	HTTPS             bool                `yaml:"https"`
	// PageURL carries connection parameters in its query string.
	PageURL     string              `yaml:"pageURL"`
	AssetServer assets.ServerConfig `yaml:"assetServer"`
	Replay      ReplayConfig        `yaml:"replay"`
	DebugDraw   DebugDrawConfig     `yaml:"debugDraw"`
	Logging     LoggingConfig       `yaml:"logging"`
	MetricsAddr string              `yaml:"metricsAddr"`
}

type ReplayConfig struct {
	Interpolation     bool          `yaml:"interpolation"`
	FrameRate         int           `yaml:"frameRate"`
	SendInterval      time.Duration `yaml:"sendInterval"`
	MessageRateWindow time.Duration `yaml:"messageRateWindow"`
	// FileInterval paces replay files. Zero means one keyframe per frame.
	FileInterval time.Duration `yaml:"fileInterval"`
}

type DebugDrawConfig struct {
	LinePoolSize   int `yaml:"linePoolSize"`
	CirclePoolSize int `yaml:"circlePoolSize"`
}

type LoggingConfig struct {
	Sinks           []string `yaml:"sinks"`
	MinimumSeverity string   `yaml:"minimumSeverity"`
	// SinkSeverity raises the threshold of single sinks, keyed by sink name.
	SinkSeverity map[string]string `yaml:"sinkSeverity"`
	JSONPath     string            `yaml:"jsonPath"`
}

func Default() Config {
	return Config{
		ServerLocations:   []string{"127.0.0.1:8888"},
		DefaultServerPort: params.DefaultServerPort,
		AssetServer:       assets.DefaultServerConfig(),
		Replay: ReplayConfig{
			FrameRate:         60,
			SendInterval:      100 * time.Millisecond,
			MessageRateWindow: 20 * time.Second,
			FileInterval:      100 * time.Millisecond,
		},
		DebugDraw: DebugDrawConfig{
			LinePoolSize:   consumers.DefaultLinePoolSize,
			CirclePoolSize: consumers.DefaultCirclePoolSize,
		},
		Logging: LoggingConfig{
			Sinks:           []string{"console"},
			MinimumSeverity: "info",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path, when path is
// set, and with the environment.
func Load(path string, logger telemetry.Logger) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	ApplyEnv(&cfg, os.Getenv, logger)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from the environment. Values that do not parse are
// logged and ignored.
func ApplyEnv(cfg *Config, getenv func(string) string, logger telemetry.Logger) {
	logger = telemetry.OrDiscard(logger)
	if raw := getenv(EnvServerLocations); raw != "" {
		var locations []string
		for _, loc := range strings.Split(raw, ",") {
			if loc = strings.TrimSpace(loc); loc != "" {
				locations = append(locations, loc)
			}
		}
		if len(locations) > 0 {
			cfg.ServerLocations = locations
		} else {
			logger.Printf("invalid %s=%q: no locations", EnvServerLocations, raw)
		}
	}
	if raw := getenv(EnvPageURL); raw != "" {
		cfg.PageURL = raw
	}
	if raw := getenv(EnvInterpolation); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Replay.Interpolation = value
		} else {
			logger.Printf("invalid %s=%q: %v", EnvInterpolation, raw, err)
		}
	}
	if raw := getenv(EnvMetricsAddr); raw != "" {
		cfg.MetricsAddr = raw
	}
	if raw := getenv(EnvFrameRate); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.Replay.FrameRate = value
		} else {
			logger.Printf("invalid %s=%q", EnvFrameRate, raw)
		}
	}
}

func (c Config) Validate() error {
	var errs []error
	if len(c.ServerLocations) == 0 {
		errs = append(errs, fmt.Errorf("%w: no server locations", ErrInvalid))
	}
	if c.DefaultServerPort <= 0 || c.DefaultServerPort > 65535 {
		errs = append(errs, fmt.Errorf("%w: default server port %d", ErrInvalid, c.DefaultServerPort))
	}
	if c.Replay.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: frame rate %d", ErrInvalid, c.Replay.FrameRate))
	}
	if c.Replay.SendInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: send interval %s", ErrInvalid, c.Replay.SendInterval))
	}
	if c.Replay.MessageRateWindow <= 0 {
		errs = append(errs, fmt.Errorf("%w: message rate window %s", ErrInvalid, c.Replay.MessageRateWindow))
	}
	for _, sink := range c.Logging.Sinks {
		if sink != "console" && sink != "json" {
			errs = append(errs, fmt.Errorf("%w: unknown log sink %q", ErrInvalid, sink))
		}
	}
	if _, ok := logging.ParseSeverity(c.Logging.MinimumSeverity); !ok {
		errs = append(errs, fmt.Errorf("%w: minimum severity %q", ErrInvalid, c.Logging.MinimumSeverity))
	}
	for sink, name := range c.Logging.SinkSeverity {
		if _, ok := logging.ParseSeverity(name); !ok {
			errs = append(errs, fmt.Errorf("%w: severity %q for sink %s", ErrInvalid, name, sink))
		}
	}
	return errors.Join(errs...)
}

// FrameInterval is the duration of one frame-loop tick.
func (c Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Replay.FrameRate)
}

// LoggingConfig converts the logging section for the router.
func (c Config) LoggingConfig() logging.Config {
	out := logging.DefaultConfig()
	if len(c.Logging.Sinks) > 0 {
		out.EnabledSinks = append([]string(nil), c.Logging.Sinks...)
	}
	if severity, ok := logging.ParseSeverity(c.Logging.MinimumSeverity); ok {
		out.MinimumSeverity = severity
	}
	for sink, name := range c.Logging.SinkSeverity {
		if severity, ok := logging.ParseSeverity(name); ok {
			if out.SinkSeverity == nil {
				out.SinkSeverity = make(map[string]logging.Severity)
			}
			out.SinkSeverity[sink] = severity
		}
	}
	out.JSON.FilePath = c.Logging.JSONPath
	return out
}

// ConnectionParams parses the page URL query.
func (c Config) ConnectionParams() params.Params {
	return params.Parse(c.PageURL)
}

// Candidates expands the websocket URLs to try. Invalid server parameters
// are reported and the configured locations are used instead.
func (c Config) Candidates(p params.Params) ([]string, error) {
	locations := c.ServerLocations
	ports := params.Single(c.DefaultServerPort)
	server, err := p.Server()
	if err == nil {
		if server.Hostname != "" {
			locations = []string{server.Hostname}
		}
		if server.Ports != nil {
			ports = *server.Ports
		}
	}
	return params.CandidateURLs(locations, ports, c.HTTPS), err
}

// AssetServerFor applies the asset overrides of p. Invalid overrides are
// reported and skipped; the returned config is always usable.
func (c Config) AssetServerFor(p params.Params) (assets.ServerConfig, error) {
	base := c.AssetServer
	if c.HTTPS {
		base.Protocol = "https"
	}
	return p.AssetServer(base)
}
