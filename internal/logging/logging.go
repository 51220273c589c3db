// Package logging builds the gateway's process-wide slog.Logger: a
// JSON-handler-with-level-from-config setup interposed with a redacting
// handler so credential fields and query-string-carried tokens never reach
// stdout, not even through a log line nobody reviewed.
package logging

import (
	"log/slog"
	"os"
)

// Config selects the logger's level and output format.
type Config struct {
	Level  string // "debug" | "info" | "warn" | "error"
	Format string // "json" | "text"; defaults to "json"
}

// New builds a redacting slog.Logger per cfg, JSON-by-default with the
// level parsed from a config string.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var base slog.Handler
	if cfg.Format == "text" {
		base = slog.NewTextHandler(os.Stdout, opts)
	} else {
		base = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(newRedactingHandler(base))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
