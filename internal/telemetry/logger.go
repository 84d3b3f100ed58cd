// Package telemetry provides structured logging, run identifiers, and
// metrics for the reconciler.
package telemetry

import (
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewLogger creates a structured JSON logger.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// NewRunID generates a sortable unique identifier for one run.
func NewRunID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// HostLogger returns a logger with run- and host-scoped fields.
func HostLogger(logger *slog.Logger, runID, host string) *slog.Logger {
	return logger.With(
		slog.String("run_id", runID),
		slog.String("host", host),
	)
}
