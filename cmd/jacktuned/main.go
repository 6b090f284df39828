// Package main provides the entry point for jacktuned, the presence-watching
// tuning daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jacktune/jacktune/pkg/jacktune/config"
	"github.com/jacktune/jacktune/pkg/jacktune/engine"
	"github.com/jacktune/jacktune/pkg/jacktune/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jacktuned: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Path:       cfg.Logging.Path,
		Components: cfg.Logging.Components,
	}); err != nil {
		return err
	}
	defer logging.Close()
	logger := logging.Get("daemon")

	// A previous daemon may have died without cleaning up.
	if err := engine.RecoverStaleDaemon(cfg.Paths.PIDFile, cfg.Paths.LedgerDir); err != nil {
		if errors.Is(err, engine.ErrAlreadyRunning) {
			return err
		}
		logger.Warn("stale daemon recovery", "err", err)
	}

	if err := engine.WritePIDFile(cfg.Paths.PIDFile); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() {
		if err := engine.RemovePIDFile(cfg.Paths.PIDFile); err != nil {
			logger.Warn("PID file removal failed", "err", err)
		}
	}()

	eng, cleanup, err := engine.Bootstrap(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Square persisted state with reality before ticking.
	outcome := eng.Reconcile(ctx)
	logger.Info("reconciled", "from", outcome.From, "to", outcome.To,
		"skipped", len(outcome.Errors))

	interval := cfg.Intervals.Tick
	if interval <= 0 {
		interval = config.DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("jacktuned started", "tick", interval, "pid", os.Getpid())

	for {
		select {
		case <-ctx.Done():
			// Applied tunables stay in place; the next start
			// reconciles them against device presence.
			logger.Info("shutting down", "state", eng.State())
			return nil
		case <-ticker.C:
			eng.Tick(ctx)
		}
	}
}
