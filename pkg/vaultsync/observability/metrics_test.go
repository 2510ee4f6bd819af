package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest creates a test meter provider with a manual reader.
func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	originalProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	cleanup := func() {
		otel.SetMeterProvider(originalProvider)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	}

	return reader, cleanup
}

// collectMetrics collects all metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)
	return &rm
}

// findMetric finds a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsRecorder(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)
}

func TestRecordPass(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPass(ctx, true, 120*time.Millisecond)
	m.RecordPass(ctx, false, 40*time.Millisecond)

	rm := collectMetrics(t, reader)

	passes := findMetric(rm, "vaultsync.pass.count")
	require.NotNil(t, passes)
	sum, ok := passes.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	latency := findMetric(rm, "vaultsync.pass.latency_ms")
	require.NotNil(t, latency)
}

func TestRecordPush(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPush(ctx, "create", 80*time.Millisecond, nil)
	m.RecordPush(ctx, "update", 30*time.Millisecond, errors.New("boom"))

	rm := collectMetrics(t, reader)

	pushes := findMetric(rm, "vaultsync.push.count")
	require.NotNil(t, pushes)

	pushErrors := findMetric(rm, "vaultsync.push.errors")
	require.NotNil(t, pushErrors)
	sum, ok := pushErrors.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var errTotal int64
	for _, dp := range sum.DataPoints {
		errTotal += dp.Value
	}
	assert.Equal(t, int64(1), errTotal, "only the failed push should count as an error")
}

func TestRecordRetries(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordRetries(context.Background(), "list", 3)

	rm := collectMetrics(t, reader)
	attempts := findMetric(rm, "vaultsync.remote.attempts")
	require.NotNil(t, attempts)
}

func TestRecordCacheLookup(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)

	rm := collectMetrics(t, reader)

	lookups := findMetric(rm, "vaultsync.cache.lookups")
	require.NotNil(t, lookups)
	sum, ok := lookups.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
}
