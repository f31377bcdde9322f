// Package logging provides the structured slog logger shared across the
// application. Components receive a scoped child logger via With("component", ...)
// rather than reaching for a global.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a text-handler slog.Logger at the given level name
// ("debug", "info", "warn", "error"; defaults to "info").
func New(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	l := slog.New(slog.NewTextHandler(os.Stdout, opts))
	slog.SetDefault(l)
	return l
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
