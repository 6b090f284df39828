package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// DeviceConfig identifies the target USB audio interface. The detector
// matches either the ALSA card label or the USB vendor/product pair.
type DeviceConfig struct {
	VendorID  string `mapstructure:"vendor_id"`
	ProductID string `mapstructure:"product_id"`
	CardName  string `mapstructure:"card_name"`
}

// PoolsConfig defines the three CPU pools the optimizer works with.
type PoolsConfig struct {
	Audio      []int `mapstructure:"audio"`
	Background []int `mapstructure:"background"`
	IRQ        []int `mapstructure:"irq"`

	// BackgroundGovernor is the frequency governor for the background
	// pool while optimized. The audio and IRQ pools always run
	// "performance".
	BackgroundGovernor string `mapstructure:"background_governor"`
}

// PriorityConfig holds the real-time scheduling table.
type PriorityConfig struct {
	Server int    `mapstructure:"server"`
	App    int    `mapstructure:"app"`
	Policy string `mapstructure:"policy"`
}

// XrunConfig configures xrun classification and recommendation thresholds.
type XrunConfig struct {
	MildThreshold       int           `mapstructure:"mild_threshold"`
	SevereJumpThreshold int           `mapstructure:"severe_jump_threshold"`
	AdapterTimeout      time.Duration `mapstructure:"adapter_timeout"`
}

// IntervalsConfig controls tick cadence and the sub-interval modulo checks.
type IntervalsConfig struct {
	Tick           time.Duration `mapstructure:"tick"`
	AffinityEvery  int           `mapstructure:"affinity_every"`
	SampleEvery    int           `mapstructure:"sample_every"`
	MonitorRefresh time.Duration `mapstructure:"monitor_refresh"`
}

// PathsConfig holds filesystem locations. Empty values fall back to XDG
// defaults at load time.
type PathsConfig struct {
	StateDir  string `mapstructure:"state_dir"`
	LedgerDir string `mapstructure:"ledger_dir"`
	EngineLog string `mapstructure:"engine_log"`
	TunnelLog string `mapstructure:"tunnel_log"`
	PIDFile   string `mapstructure:"pid_file"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Components map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	Device         DeviceConfig    `mapstructure:"device"`
	Pools          PoolsConfig     `mapstructure:"pools"`
	Priorities     PriorityConfig  `mapstructure:"priorities"`
	Xrun           XrunConfig      `mapstructure:"xrun"`
	Intervals      IntervalsConfig `mapstructure:"intervals"`
	Paths          PathsConfig     `mapstructure:"paths"`
	Logging        LoggingConfig   `mapstructure:"logging"`
	ExtraProcesses []string        `mapstructure:"extra_processes"`
}

// ErrPriorityOrder is returned when the configured application priority is
// not strictly below the audio-server priority.
var ErrPriorityOrder = errors.New("server priority must be strictly greater than app priority")

// ErrEmptyAudioPool is returned when the audio CPU pool has no members.
var ErrEmptyAudioPool = errors.New("audio CPU pool must not be empty")

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/jacktune/config.yaml
//   - $HOME/.config/jacktune/config.yaml
//
// Environment variables are prefixed with JACKTUNE_
// (e.g., JACKTUNE_XRUN_MILD_THRESHOLD).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "jacktune"))
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "jacktune"))

	v.SetEnvPrefix("JACKTUNE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyPathDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.vendor_id", DefaultVendorID)
	v.SetDefault("device.product_id", DefaultProductID)
	v.SetDefault("device.card_name", DefaultCardName)

	v.SetDefault("pools.audio", DefaultAudioPool)
	v.SetDefault("pools.background", DefaultBackgroundPool)
	v.SetDefault("pools.irq", DefaultIRQPool)
	v.SetDefault("pools.background_governor", DefaultBackgroundGovernor)

	v.SetDefault("priorities.server", DefaultServerPriority)
	v.SetDefault("priorities.app", DefaultAppPriority)
	v.SetDefault("priorities.policy", "fifo")

	v.SetDefault("xrun.mild_threshold", DefaultMildThreshold)
	v.SetDefault("xrun.severe_jump_threshold", DefaultSevereJumpThreshold)
	v.SetDefault("xrun.adapter_timeout", DefaultAdapterTimeout)

	v.SetDefault("intervals.tick", DefaultTickInterval)
	v.SetDefault("intervals.affinity_every", DefaultAffinityEvery)
	v.SetDefault("intervals.sample_every", DefaultSampleEvery)
	v.SetDefault("intervals.monitor_refresh", DefaultMonitorRefresh)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.components", map[string]string{
		"engine":    "info",
		"optimizer": "info",
		"affinity":  "info",
		"xrun":      "warn",
	})
}

// applyPathDefaults fills empty path fields with XDG locations.
func applyPathDefaults(cfg *Config) {
	if cfg.Paths.StateDir == "" {
		cfg.Paths.StateDir = filepath.Join(xdg.StateHome, "jacktune")
	}
	if cfg.Paths.LedgerDir == "" {
		cfg.Paths.LedgerDir = filepath.Join(cfg.Paths.StateDir, "ledger.db")
	}
	if cfg.Paths.PIDFile == "" {
		cfg.Paths.PIDFile = filepath.Join(cfg.Paths.StateDir, "jacktuned.pid")
	}
	if cfg.Paths.EngineLog == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Paths.EngineLog = filepath.Join(home, ".log", "jack", "jackdbus.log")
		}
	}
}

// Validate checks cross-field invariants that viper cannot express.
func (c *Config) Validate() error {
	if c.Priorities.Server <= c.Priorities.App {
		return fmt.Errorf("%w: server=%d app=%d", ErrPriorityOrder, c.Priorities.Server, c.Priorities.App)
	}
	if len(c.Pools.Audio) == 0 {
		return ErrEmptyAudioPool
	}
	return nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "jacktune"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "jacktune"), nil
}
