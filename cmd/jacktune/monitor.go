package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jacktune/jacktune/cmd/jacktune/tui"
	"github.com/jacktune/jacktune/pkg/jacktune/engine"
	"github.com/jacktune/jacktune/pkg/jacktune/logging"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live xrun dashboard",
	Long: `Open a live dashboard showing device presence, engine settings, windowed
xrun counts, and buffer recommendations. Strictly read-only; quit with q.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Close()

	eng, cleanup := engine.BootstrapReadOnly(cfg)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots := make(chan *engine.Snapshot, 1)
	go func() {
		eng.LiveMonitor(ctx, func(snap *engine.Snapshot) {
			// Drop the stale snapshot if the UI has not consumed it yet.
			select {
			case snapshots <- snap:
			default:
			}
		})
		close(snapshots)
	}()

	program := tea.NewProgram(tui.NewModel(snapshots, cancel), tea.WithAltScreen())
	_, err = program.Run()
	return err
}
