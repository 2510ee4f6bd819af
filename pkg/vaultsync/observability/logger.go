// Package observability provides structured logging, metrics, and
// distributed tracing for the sync engine.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds reconciliation context to a logger.
// Returns a new logger with the pass_id field.
func EnrichLogger(logger *slog.Logger, passID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("pass_id", passID))
}

// LogPassStart logs the start of a reconciliation pass.
func LogPassStart(logger *slog.Logger, passID string, pending int) {
	if logger == nil {
		return
	}
	logger.Info("reconciliation pass starting",
		slog.String("pass_id", passID),
		slog.Int("pending", pending),
	)
}

// LogPassComplete logs successful pass completion.
func LogPassComplete(logger *slog.Logger, passID string, durationMs float64, pulled, pushed, failed int) {
	if logger == nil {
		return
	}
	logger.Info("reconciliation pass completed",
		slog.String("pass_id", passID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("pulled", pulled),
		slog.Int("pushed", pushed),
		slog.Int("failed", failed),
	)
}

// LogPassError logs a fatal pass failure.
func LogPassError(logger *slog.Logger, passID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("reconciliation pass failed",
		slog.String("pass_id", passID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogPassSkipped logs a coalesced or offline no-op pass.
func LogPassSkipped(logger *slog.Logger, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("reconciliation pass skipped",
		slog.String("reason", reason),
	)
}

// LogRecordPushed logs one record reaching the remote store.
func LogRecordPushed(logger *slog.Logger, recordID, serverID string) {
	if logger == nil {
		return
	}
	logger.Debug("record pushed",
		slog.String("record_id", recordID),
		slog.String("server_id", serverID),
	)
}

// LogRecordPushError logs a per-record push failure (non-fatal).
func LogRecordPushError(logger *slog.Logger, recordID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("record push failed",
		slog.String("record_id", recordID),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs a checkpoint advance.
func LogCheckpoint(logger *slog.Logger, passID string, at time.Time) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint advanced",
		slog.String("pass_id", passID),
		slog.Time("last_sync_time", at),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in
// milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
