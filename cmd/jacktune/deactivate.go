package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacktune/jacktune/pkg/jacktune/engine"
	"github.com/jacktune/jacktune/pkg/jacktune/logging"
)

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Restore the pre-optimization state",
	Long: `Walk back every tunable recorded during activation, newest first, and
release real-time priorities and CPU pinning from audio processes.
Idempotent: running it twice is harmless.`,
	RunE: runDeactivate,
}

func init() {
	rootCmd.AddCommand(deactivateCmd)
}

func runDeactivate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Close()

	if engine.IsDaemonRunning(cfg.Paths.PIDFile) {
		return errDaemonOwnsState
	}

	eng, cleanup, err := engine.Bootstrap(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome := eng.Deactivate(ctx)
	for _, msg := range outcome.Errors {
		printError("%s", msg)
	}
	printInfo("System restored (%s -> %s)", outcome.From, outcome.To)
	return nil
}
