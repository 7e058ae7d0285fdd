// Package logging constructs the process-wide structured logger threaded
// by reference into every continuity-store component, following the
// host-adjacent agent code's use of log/slog directly rather than a
// third-party logging facade.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New builds a slog.Logger for the given level ("debug", "info", "warn",
// "error") and format ("json" or "text"). Unrecognized values fall back to
// info/text so a malformed config value never prevents the store from
// logging at all.
func New(writer io.Writer, level, format string) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
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

// Component returns a child logger tagged with a "component" field, the
// convention every package in this module uses to identify its log lines.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger.With("component", name)
}
