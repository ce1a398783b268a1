package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/natefinch/lumberjack.v2"
)

// parseLevel maps a config level name to a slog level.
func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
	}
}

// setupLogging installs the default slog logger. Records go to stderr and,
// when dir is set, to a size-rotated file in dir. The returned closer
// releases the file.
func setupLogging(level, dir string) (io.Closer, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		w := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "sim-logbook.log"),
			MaxSize:    16, // MB
			MaxBackups: 3,
			MaxAge:     30,
		}
		out = io.MultiWriter(os.Stderr, w)
		closer = w
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})))
	slog.Info("logging started", "version", Version, "os", runtime.GOOS, "arch", runtime.GOARCH, "level", lvl.String())
	return closer, nil
}
