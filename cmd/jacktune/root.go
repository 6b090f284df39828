package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacktune/jacktune/pkg/jacktune/config"
	"github.com/jacktune/jacktune/pkg/jacktune/logging"
)

var (
	flagVerbose bool
	flagQuiet   bool
	flagJSON    bool

	rootCmd = &cobra.Command{
		Use:   "jacktune",
		Short: "Tune the system for low-latency USB audio",
		Long: `Jacktune retunes CPU governors, IRQ affinity, and process scheduling
while a USB audio interface is attached, and restores everything when it
detaches.

Run the daemon for automatic presence-driven tuning, or use activate and
deactivate for manual control.

Examples:
  jacktune daemon start      # Watch for the device in the background
  jacktune status            # Show current optimization state
  jacktune status --detailed # Include xrun counts and recommendations
  jacktune monitor           # Live xrun dashboard
  jacktune activate          # Apply the tuning now, device or not`,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "output JSON format")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and brings up logging for a CLI run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if flagVerbose {
		level = "debug"
	}
	if err := logging.Init(logging.Config{
		Level:      level,
		Path:       cfg.Logging.Path,
		Components: cfg.Logging.Components,
		Console:    flagVerbose,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// printInfo prints a message unless quiet mode is enabled.
func printInfo(format string, args ...interface{}) {
	if !flagQuiet {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
