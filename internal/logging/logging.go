// Package logging builds the process-wide slog logger. Components receive a
// child logger tagged with a "comp" attribute rather than using a global.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds the root logger: a compact console handler when pretty is
// enabled, a JSON handler otherwise.
func New(level string, pretty bool) *slog.Logger {
	lvl := ParseLevel(level, slog.LevelInfo)
	if pretty {
		return slog.New(NewConsoleHandler(os.Stdout, lvl))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// ParseLevel maps a config string to a slog level, falling back to def.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return def
	}
}
