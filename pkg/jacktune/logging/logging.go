// Package logging provides component-scoped logging for jacktune. The CLI,
// the daemon, and the library packages all share it.
//
// Basic usage:
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Close()
//
//	logger := logging.Get("optimizer")
//	logger.Info("governor applied", "cpu", 2, "governor", "performance")
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a level string into a charmbracelet log level.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel, nil
	case "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	// Components maps component names to level overrides.
	Components map[string]string

	// Console mirrors logs to stderr when true (used by the CLI; the
	// daemon logs to file only).
	Console bool
}

type state struct {
	mu          sync.Mutex
	initialized bool
	file        io.WriteCloser
	level       log.Level
	components  map[string]log.Level
	console     bool
	loggers     map[string]*log.Logger
}

var globalState = &state{
	components: make(map[string]log.Level),
	loggers:    make(map[string]*log.Logger),
}

// DefaultLogPath returns the default log file location under the XDG state
// directory.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "jacktune", "jacktune.log")
}

// Init initializes the logging system. Before Init is called, all loggers
// write to io.Discard.
func Init(cfg Config) error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	components := make(map[string]log.Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("component %s: %w", comp, err)
		}
		components[comp] = parsed
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	if globalState.file != nil {
		_ = globalState.file.Close()
	}
	globalState.file = f
	globalState.level = level
	globalState.components = components
	globalState.console = cfg.Console
	globalState.initialized = true
	// Re-create cached loggers with the new configuration.
	for component := range globalState.loggers {
		globalState.loggers[component] = newLogger(component)
	}

	return nil
}

// Get returns a logger for the given component, applying any configured
// per-component level override.
func Get(component string) *log.Logger {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if logger, ok := globalState.loggers[component]; ok {
		return logger
	}
	logger := newLogger(component)
	globalState.loggers[component] = logger
	return logger
}

// newLogger builds a logger for a component. Caller holds the state lock.
func newLogger(component string) *log.Logger {
	var w io.Writer = io.Discard
	if globalState.initialized {
		w = globalState.file
		if globalState.console {
			w = io.MultiWriter(globalState.file, os.Stderr)
		}
	}

	level := globalState.level
	if override, ok := globalState.components[component]; ok {
		level = override
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          component,
	})
	logger.SetLevel(level)
	return logger
}

// Close flushes and closes the log file.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if !globalState.initialized || globalState.file == nil {
		return nil
	}
	err := globalState.file.Close()
	globalState.file = nil
	globalState.initialized = false
	globalState.loggers = make(map[string]*log.Logger)
	return err
}
