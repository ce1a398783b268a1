package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const appDirName = "sim-logbook"

// Config is the on-disk configuration. Flags override individual fields.
type Config struct {
	SimType      string        `yaml:"sim"` // "msfs", "xplane" or "auto"
	XPlaneAddr   string        `yaml:"xplane_addr"`
	PollInterval time.Duration `yaml:"poll_interval"`
	NavdataPath  string        `yaml:"navdata"`
	LogbookPath  string        `yaml:"logbook"`
	LogLevel     string        `yaml:"log_level"`
	LogDir       string        `yaml:"log_dir"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	Tracker      TrackerConfig `yaml:"tracker"`
}

// DefaultConfigDir is where config.yaml, the log file and, by default, the
// logbook live.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, appDirName)
}

func DefaultConfig() Config {
	dir := DefaultConfigDir()
	return Config{
		SimType:      "auto",
		XPlaneAddr:   xplanePluginAddr,
		PollInterval: time.Second,
		LogbookPath:  filepath.Join(dir, "logbook.csv"),
		LogLevel:     "info",
		LogDir:       dir,
		Tracker:      DefaultTrackerConfig(),
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Save writes cfg to path, creating the directory if needed.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c Config) Validate() error {
	switch c.SimType {
	case "msfs", "xplane", "auto":
	default:
		return fmt.Errorf("unknown sim %q (want msfs, xplane or auto)", c.SimType)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.LogbookPath == "" {
		return fmt.Errorf("logbook path is required")
	}
	if err := c.Tracker.Validate(); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	return nil
}
