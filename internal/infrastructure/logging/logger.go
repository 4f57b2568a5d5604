// Package logging provides structured logging utilities.
//
// Logs are formatted in Maven-style with colors:
// [LEVEL] [SYSTEM] [HH:MM:SS] message key=value
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/eshaffer321/propledger/internal/infrastructure/config"
)

// System names used to scope loggers
const (
	SystemRecon  = "recon"
	SystemAPI    = "api"
	SystemImport = "import"
)

// NewLogger creates a structured logger based on config
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerTo(os.Stdout, cfg)
}

// NewLoggerTo creates a structured logger writing to w
func NewLoggerTo(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	// Use Maven-style handler for better readability
	return slog.New(NewMavenHandler(w, opts))
}

// NewLoggerWithSystem creates a logger with a system prefix (e.g., "recon", "api", "import")
func NewLoggerWithSystem(cfg config.LoggingConfig, system string) *slog.Logger {
	logger := NewLogger(cfg)
	return logger.With("system", system)
}

// ParseLevel maps a config level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
