// Package logging provides structured logging for every component of the
// release engine, built on log/slog. Components never reach for a package
// level logger; a *slog.Logger is threaded in through each constructor.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config mirrors the shape components expect to construct a logger from
// whatever configuration layer the embedding application uses.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|text
	Output io.Writer
}

// New builds a *slog.Logger from cfg. A nil cfg.Output defaults to os.Stderr,
// since release operations are typically driven from a CLI that reserves
// stdout for structured result output.
func New(cfg Config) *slog.Logger {
	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a case-insensitive level name to a slog.Level, defaulting
// to Info for empty or unrecognized input.
func ParseLevel(level string) slog.Level {
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

// Discard returns a logger that drops everything, for use where a caller
// does not pass one in (e.g. tests, or library consumers that never wired
// logging through).
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
