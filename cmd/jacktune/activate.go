package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacktune/jacktune/pkg/jacktune/engine"
	"github.com/jacktune/jacktune/pkg/jacktune/logging"
)

var errDaemonOwnsState = errors.New("jacktuned is running and manages optimization; stop it first (jacktune daemon stop)")

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Apply the optimization now",
	Long: `Apply the full tuning set immediately, regardless of device presence:
CPU governors, IRQ affinity, USB power settings, kernel scheduling
parameters, and real-time priorities for audio processes.

Every value changed is recorded so deactivate can restore it exactly.`,
	RunE: runActivate,
}

func init() {
	rootCmd.AddCommand(activateCmd)
}

func runActivate(_ *cobra.Command, _ []string) error {
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

	if outcome := eng.Reconcile(ctx); len(outcome.Errors) > 0 {
		printInfo("Reconciled previous state (%d sub-operations skipped)", len(outcome.Errors))
	}

	outcome := eng.Activate(ctx)
	for _, msg := range outcome.Errors {
		printError("%s", msg)
	}
	printInfo("System optimized (%s -> %s)", outcome.From, outcome.To)
	return nil
}
