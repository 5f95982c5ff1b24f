package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates the process-wide structured logger. Format "pretty"
// renders colored single-line output for terminals; anything else is JSON.
func NewLogger(level, format string) *slog.Logger {
	log := newLoggerTo(os.Stdout, level, format)
	slog.SetDefault(log)
	return log
}

// newLoggerTo is the writer-injectable constructor the tests use.
func newLoggerTo(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "pretty":
		h = newPrettyHandler(w, opts, w == os.Stdout)
	default:
		opts.AddSource = true
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
