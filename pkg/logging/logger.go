// Package logging provides structured logging configuration and utilities.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Config holds logging configuration.
type Config struct {
	Level  string
	Pretty bool
}

// NewLogger builds a slog logger writing JSON to stdout, or the text handler
// when Pretty is set. Unknown levels fall back to info.
func NewLogger(cfg Config) *slog.Logger {
	logger, _ := NewDynamicLogger(cfg)
	return logger
}

// NewDynamicLogger builds a logger whose minimum level can be changed at
// runtime through the returned level var. The configuration hot-reload path
// uses this to apply log-level changes without restarting.
func NewDynamicLogger(cfg Config) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Pretty {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), level
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), level
}

// Setup configures the process-wide default logger and returns it together
// with its level control.
func Setup(cfg Config) (*slog.Logger, *slog.LevelVar) {
	logger, level := NewDynamicLogger(cfg)
	slog.SetDefault(logger)
	return logger, level
}

// ParseLevel maps a level name to its slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
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
