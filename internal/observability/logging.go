package observability

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// SetupLogger installs the process-wide structured logger at the
// given level ("debug"|"info"|"warn"|"error") and format
// ("text"|"json"), writing to stdout.
func SetupLogger(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// SetupLoggerToFile is SetupLogger plus a second sink at path. On
// failure to open the file it logs a warning and continues with the
// stdout-only logger.
func SetupLoggerToFile(level, format, path string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	writers := []io.Writer{os.Stdout}
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				slog.Warn("failed to create log directory, logging to stdout only", "path", path, "error", err)
				path = ""
			}
		}
		if path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				slog.Warn("failed to open log file, logging to stdout only", "path", path, "error", err)
			} else {
				writers = append(writers, f)
			}
		}
	}

	out := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
}
