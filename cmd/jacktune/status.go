package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jacktune/jacktune/pkg/jacktune/advise"
	"github.com/jacktune/jacktune/pkg/jacktune/engine"
	"github.com/jacktune/jacktune/pkg/jacktune/logging"
)

var flagDetailed bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current optimization state",
	Long: `Show device presence, optimization state, and the audio engine's active
settings. With --detailed, also poll the xrun sources and print windowed
counts, severity, and buffer recommendations.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&flagDetailed, "detailed", "d", false, "include xrun counts and recommendations")
	rootCmd.AddCommand(statusCmd)
}

// snapshotWindowOrder fixes the display order of the windowed counts.
var snapshotWindowOrder = []string{"5s", "10s", "30s", "1m", "5m"}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Close()

	// Observation only: never touches the ledger store, so it is safe
	// while the daemon runs.
	eng, cleanup := engine.BootstrapReadOnly(cfg)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var snap *engine.Snapshot
	if flagDetailed {
		snap = eng.DetailedStatus(ctx)
	} else {
		snap = eng.Status(ctx)
	}

	// The machine state lives with whoever last mutated tunables; the
	// published snapshot is its authoritative record.
	if published, err := engine.ReadSnapshot(engine.SnapshotPath(cfg.Paths.StateDir)); err == nil {
		snap.State = published.State
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	printStatus(cfg.Paths.PIDFile, snap)
	return nil
}

func printStatus(pidPath string, snap *engine.Snapshot) {
	presence := "absent"
	if snap.DevicePresent {
		presence = "present"
	}
	printInfo("Device:   %s", presence)
	printInfo("State:    %s", snap.State)

	if snap.JackActive {
		line := "running"
		if snap.BufferFrames > 0 && snap.SampleRateHz > 0 {
			line = fmt.Sprintf("running, %d frames @ %d Hz (%.1f ms)",
				snap.BufferFrames, snap.SampleRateHz,
				advise.Latency(snap.BufferFrames, snap.SampleRateHz))
			if snap.Periods > 0 {
				line += fmt.Sprintf(", %d periods", snap.Periods)
			}
		}
		printInfo("JACK:     %s", line)
	} else {
		printInfo("JACK:     not running")
	}

	if engine.IsDaemonRunning(pidPath) {
		pid, _ := engine.ReadPIDFile(pidPath)
		printInfo("Daemon:   running (pid %d)", pid)
	} else {
		printInfo("Daemon:   not running")
	}

	if len(snap.XrunWindowCounts) > 0 {
		parts := make([]string, 0, len(snapshotWindowOrder))
		for _, label := range snapshotWindowOrder {
			if n, ok := snap.XrunWindowCounts[label]; ok {
				parts = append(parts, fmt.Sprintf("%s=%d", label, n))
			}
		}
		printInfo("Xruns:    %s", strings.Join(parts, "  "))
	}
	if snap.Severity != "" {
		printInfo("Severity: %s", snap.Severity)
	}
	if len(snap.Recommendations) > 0 {
		printInfo("Recommendations:")
		for _, rec := range snap.Recommendations {
			printInfo("  - %s", rec)
		}
	}
	if !snap.UpdatedAt.IsZero() {
		printInfo("Updated:  %s", humanize.Time(snap.UpdatedAt))
	}
}
