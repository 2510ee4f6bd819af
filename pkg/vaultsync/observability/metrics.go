package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records sync engine metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPass records a reconciliation pass outcome.
	RecordPass(ctx context.Context, success bool, duration time.Duration)

	// RecordPush records one per-record push attempt.
	RecordPush(ctx context.Context, operation string, duration time.Duration, err error)

	// RecordRetries records how many attempts a wrapped remote call took.
	RecordRetries(ctx context.Context, operation string, attempts int)

	// RecordCacheLookup records a response cache hit or miss.
	RecordCacheLookup(ctx context.Context, hit bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	passes       metric.Int64Counter
	passLatency  metric.Float64Histogram
	pushes       metric.Int64Counter
	pushLatency  metric.Float64Histogram
	pushErrors   metric.Int64Counter
	callAttempts metric.Int64Histogram
	cacheLookups metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("vaultsync")

	passes, err := meter.Int64Counter("vaultsync.pass.count",
		metric.WithDescription("Number of reconciliation passes"),
	)
	if err != nil {
		return nil, err
	}

	passLatency, err := meter.Float64Histogram("vaultsync.pass.latency_ms",
		metric.WithDescription("Reconciliation pass latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	pushes, err := meter.Int64Counter("vaultsync.push.count",
		metric.WithDescription("Number of per-record push attempts"),
	)
	if err != nil {
		return nil, err
	}

	pushLatency, err := meter.Float64Histogram("vaultsync.push.latency_ms",
		metric.WithDescription("Per-record push latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	pushErrors, err := meter.Int64Counter("vaultsync.push.errors",
		metric.WithDescription("Number of per-record push failures"),
	)
	if err != nil {
		return nil, err
	}

	callAttempts, err := meter.Int64Histogram("vaultsync.remote.attempts",
		metric.WithDescription("Attempts per wrapped remote call"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter("vaultsync.cache.lookups",
		metric.WithDescription("Response cache lookups"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		passes:       passes,
		passLatency:  passLatency,
		pushes:       pushes,
		pushLatency:  pushLatency,
		pushErrors:   pushErrors,
		callAttempts: callAttempts,
		cacheLookups: cacheLookups,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordPass records a reconciliation pass outcome.
func (m *otelMetrics) RecordPass(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.passes.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.passLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordPush records one per-record push attempt.
func (m *otelMetrics) RecordPush(ctx context.Context, operation string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
	}

	m.pushes.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.pushLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.pushErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRetries records how many attempts a wrapped remote call took.
func (m *otelMetrics) RecordRetries(ctx context.Context, operation string, attempts int) {
	m.callAttempts.Record(ctx, int64(attempts), metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordCacheLookup records a response cache hit or miss.
func (m *otelMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("hit", hit),
	))
}
