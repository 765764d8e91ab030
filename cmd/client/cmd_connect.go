package main

import (
	"github.com/spf13/cobra"

	"siro-hitl/client/internal/app"
)

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().Duration("interval", 0, "client state send interval (overrides config)")
	connectCmd.Flags().StringArray("param", nil, "connection parameter key=value; repeatable")
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a simulation server and mirror its scene",
	Args:  cobra.NoArgs,
	RunE:  runConnect,
}

func runConnect(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}
	if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
		cfg.Replay.SendInterval = interval
	}
	params, err := parseParams(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	return app.Run(ctx, app.Options{
		Config: cfg,
		Params: params,
		Logger: logger,
	})
}
