package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"siro-hitl/client/internal/config"
	"siro-hitl/client/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:           "hitl-client",
	Short:         "Headless gfx-replay client for HITL simulation servers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.StringSlice("url", nil, "server location (host or host:port); repeatable, replaces configured locations")
	flags.Bool("interpolate", false, "interpolate between keyframes")
	flags.String("metrics-addr", "", "address for the Prometheus /metrics endpoint")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newLogger() telemetry.Logger {
	return telemetry.WrapLogger(log.New(os.Stderr, "", log.LstdFlags))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// loadConfig applies the persistent flags over the config file and
// environment.
func loadConfig(cmd *cobra.Command, logger telemetry.Logger) (config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path, logger)
	if err != nil {
		return config.Config{}, err
	}
	if urls, _ := flags.GetStringSlice("url"); len(urls) > 0 {
		cfg.ServerLocations = urls
	}
	if flags.Changed("interpolate") {
		cfg.Replay.Interpolation, _ = flags.GetBool("interpolate")
	}
	if addr, _ := flags.GetString("metrics-addr"); addr != "" {
		cfg.MetricsAddr = addr
	}
	return cfg, cfg.Validate()
}

func parseParams(cmd *cobra.Command) (map[string]string, error) {
	raw, _ := cmd.Flags().GetStringArray("param")
	out := make(map[string]string, len(raw))
	for _, pair := range raw {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}
