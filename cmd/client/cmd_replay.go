package main

import (
	"github.com/spf13/cobra"

	"siro-hitl/client/internal/app"
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Duration("interval", 0, "delay between keyframes; 0 plays one per frame")
}

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Play a recorded keyframe file without a server",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("interval") {
		cfg.Replay.FileInterval, _ = cmd.Flags().GetDuration("interval")
	}

	ctx, stop := signalContext()
	defer stop()
	return app.RunReplay(ctx, app.Options{
		Config: cfg,
		Logger: logger,
	}, args[0])
}
