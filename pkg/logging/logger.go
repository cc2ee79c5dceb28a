// Package logging provides the broker-wide structured logger. Every process
// (API, queue workers, sweeper) logs JSON to stdout; per-lead context is
// attached with WithLead so a single lead's journey can be followed across
// the webhook, the conversation worker, and the reminder sweeper.
package logging

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with broker-specific helpers.
type Logger struct {
	*slog.Logger
}

// New creates a logger at the given level (debug, info, warn, error).
// Unknown or empty levels fall back to info.
func New(level string) *Logger {
	lvl := slog.LevelInfo
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = slog.LevelInfo
		}
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return &Logger{Logger: slog.New(handler)}
}

// Default returns an info-level logger.
func Default() *Logger {
	return New("info")
}

// WithLead returns a logger that stamps every record with the lead id.
func (l *Logger) WithLead(leadID string) *Logger {
	return &Logger{Logger: l.Logger.With("lead_id", leadID)}
}
