// Package logging configures the process-wide slog logger: JSON lines
// to an optional rotating file, plus stderr. When stderr is a terminal
// the stderr stream uses the text handler instead of JSON.
package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath receives JSON log lines. Empty disables the file sink.
	FilePath string
	// MaxSizeMB is the file size before rotation (default 10).
	MaxSizeMB int
	// MaxFiles is the number of rotated files kept (default 5).
	MaxFiles int
}

// Setup installs the default logger and returns a cleanup function that
// flushes and closes the log file.
func Setup(cfg Config) (func(), error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var stderrHandler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		stderrHandler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		stderrHandler = slog.NewJSONHandler(os.Stderr, opts)
	}

	cleanup := func() {}
	handler := stderrHandler
	if cfg.FilePath != "" {
		writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, err
		}
		handler = fanout{
			stderrHandler,
			slog.NewJSONHandler(writer, opts),
		}
		cleanup = func() {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}

	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
