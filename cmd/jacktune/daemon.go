package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jacktune/jacktune/pkg/jacktune/engine"
	"github.com/jacktune/jacktune/pkg/jacktune/logging"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the jacktuned daemon",
	Long: `Manage the jacktuned daemon that watches for the audio interface and
applies or reverts the tuning automatically.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the jacktuned daemon",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the jacktuned daemon",
	Long: `Stop the jacktuned daemon gracefully. Applied tunables are left in
place; the next daemon start reconciles them against device presence.`,
	RunE: runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the jacktuned daemon",
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Close()

	if engine.IsDaemonRunning(cfg.Paths.PIDFile) {
		printInfo("Daemon already running")
		return nil
	}

	binary, err := resolveDaemonBinary()
	if err != nil {
		return fmt.Errorf("find jacktuned: %w", err)
	}

	// exec.Command, not CommandContext: the daemon must outlive this
	// process.
	daemon := exec.Command(binary)
	daemon.Stdout = nil
	daemon.Stderr = nil
	daemon.Stdin = nil
	if err := daemon.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if daemon.Process != nil {
		_ = daemon.Process.Release()
	}

	// Wait for the PID file to show up.
	for range 50 {
		time.Sleep(100 * time.Millisecond)
		if engine.IsDaemonRunning(cfg.Paths.PIDFile) {
			printInfo("Daemon started")
			return nil
		}
	}
	return errors.New("daemon did not come up in time")
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Close()

	pid, err := engine.ReadPIDFile(cfg.Paths.PIDFile)
	if err != nil || !engine.IsProcessRunning(pid) {
		return errors.New("daemon is not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}

	for range 20 {
		time.Sleep(250 * time.Millisecond)
		if !engine.IsProcessRunning(pid) {
			printInfo("Daemon stopped")
			return nil
		}
	}
	return errors.New("daemon did not stop in time")
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Close()

	if engine.IsDaemonRunning(cfg.Paths.PIDFile) {
		if err := runDaemonStop(cmd, args); err != nil {
			return fmt.Errorf("failed to stop daemon: %w", err)
		}
	}
	return runDaemonStart(cmd, args)
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Close()

	if !engine.IsDaemonRunning(cfg.Paths.PIDFile) {
		printInfo("Daemon status: not running")
		return nil
	}

	pid, _ := engine.ReadPIDFile(cfg.Paths.PIDFile)
	printInfo("Daemon status: running (pid %d)", pid)

	snap, err := engine.ReadSnapshot(engine.SnapshotPath(cfg.Paths.StateDir))
	if err != nil {
		return nil // no snapshot published yet
	}
	printInfo("  State:         %s", snap.State)
	printInfo("  Last snapshot: %s", humanize.Time(snap.UpdatedAt))
	return nil
}

// resolveDaemonBinary finds the jacktuned binary. Priority: same directory
// as the current executable, then PATH.
func resolveDaemonBinary() (string, error) {
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), "jacktuned")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if path, err := exec.LookPath("jacktuned"); err == nil {
		return path, nil
	}
	return "", errors.New("jacktuned not found next to jacktune or in PATH")
}
