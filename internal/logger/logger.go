// Package logger builds the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/coin-ledger/internal/config"
)

// NewLogger creates the process logger on stdout
func NewLogger(cfg *config.Config) *slog.Logger {
	return newWithConfig(os.Stdout, cfg)
}

// newWithConfig tags every record with the application name and environment
func newWithConfig(w io.Writer, cfg *config.Config) *slog.Logger {
	logger := New(w, cfg.Logging.Level)
	var attrs []any
	if cfg.Application.Name != "" {
		attrs = append(attrs, "app", cfg.Application.Name)
	}
	if cfg.Application.Env != "" {
		attrs = append(attrs, "env", cfg.Application.Env)
	}
	if len(attrs) > 0 {
		logger = logger.With(attrs...)
	}

	logger.Info("logger initialized", "level", ParseLevel(cfg.Logging.Level))

	return logger
}

// New creates a JSON logger writing to w. Source locations are attached at debug level.
func New(w io.Writer, level string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info
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
