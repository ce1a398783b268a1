package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "auto", cfg.SimType)
	assert.Equal(t, xplanePluginAddr, cfg.XPlaneAddr)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, DefaultTrackerConfig(), cfg.Tracker)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
sim: xplane
navdata: /data/little_navmap_navigraph.sqlite
logbook: /data/flights.csv
poll_interval: 500ms
metrics_addr: 127.0.0.1:9464
tracker:
  touch_and_go_window: 1m
  rotation_speed_kt: 55
  incomplete_policy: flag
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "xplane", cfg.SimType)
	assert.Equal(t, "/data/little_navmap_navigraph.sqlite", cfg.NavdataPath)
	assert.Equal(t, "/data/flights.csv", cfg.LogbookPath)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "127.0.0.1:9464", cfg.MetricsAddr)
	assert.Equal(t, time.Minute, cfg.Tracker.TouchAndGoWindow)
	assert.Equal(t, 55.0, cfg.Tracker.RotationSpeedKt)
	assert.Equal(t, PolicyFlag, cfg.Tracker.IncompletePolicy)

	// Unset keys keep their defaults.
	assert.Equal(t, time.Second, cfg.Tracker.GroundDebounce)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown sim", "sim: fsx\n"},
		{"bad policy", "tracker:\n  incomplete_policy: keep\n"},
		{"negative rotation", "tracker:\n  rotation_speed_kt: -1\n"},
		{"zero poll interval", "poll_interval: 0s\n"},
		{"not yaml", "sim: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestConfigSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.SimType = "msfs"
	cfg.Tracker.GapThreshold = 30 * time.Second
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestOptionsApply(t *testing.T) {
	cfg := DefaultConfig()
	o, err := parseFlags([]string{"-sim", "xplane", "-logbook", "/tmp/book.csv", "-loglevel", "debug"})
	require.NoError(t, err)
	o.apply(&cfg)

	assert.Equal(t, "xplane", cfg.SimType)
	assert.Equal(t, "/tmp/book.csv", cfg.LogbookPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DefaultConfig().LogDir, cfg.LogDir)
	assert.Empty(t, cfg.NavdataPath)
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error", ""} {
		_, err := parseLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := parseLevel("verbose")
	assert.Error(t, err)
}

func TestSetupLoggingWritesFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	dir := t.TempDir()
	closer, err := setupLogging("debug", dir)
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "sim-logbook.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "logging started")
}
