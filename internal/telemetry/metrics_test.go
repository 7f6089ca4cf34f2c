package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collect reads all metrics from the reader and returns the named metric from the named scope
func collect(t *testing.T, reader *sdkmetric.ManualReader, scopeName, metricName string) (metricdata.Metrics, bool) {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != scopeName {
			continue
		}
		for _, m := range scope.Metrics {
			if m.Name == metricName {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func newReaderProvider(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader, mp
}

func TestNewMetrics_NilProvider(t *testing.T) {
	t.Parallel()

	cache, err := NewCacheMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, cache)

	syncMetrics, err := NewSyncMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, syncMetrics)

	notify, err := NewNotifyMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, notify)
}

func TestMetrics_NilReceiversAreNoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var cache *CacheMetrics
	var syncMetrics *SyncMetrics
	var notify *NotifyMetrics

	assert.NotPanics(t, func() {
		cache.RecordLookup(ctx, "fast", true)
		cache.RecordDurableError(ctx, "get")
		syncMetrics.RecordSyncDuration(ctx, time.Second, false, true)
		syncMetrics.RecordRecordUpdated(ctx, "new")
		syncMetrics.RecordPageFetched(ctx, true)
		notify.RecordDelivery(ctx, "webhook", false)
	})
}

func TestCacheMetrics_RecordLookup(t *testing.T) {
	t.Parallel()

	reader, mp := newReaderProvider(t)
	metrics, err := NewCacheMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.RecordLookup(ctx, "fast", true)
	metrics.RecordLookup(ctx, "fast", true)
	metrics.RecordLookup(ctx, "durable", false)

	m, ok := collect(t, reader, CacheMetricsMeterName, "plugin_mirror_cache_lookups_total")
	require.True(t, ok, "expected lookups metric")

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected sum data type")

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.Len(t, sum.DataPoints, 2)
}

func TestSyncMetrics_RecordSyncDuration(t *testing.T) {
	t.Parallel()

	reader, mp := newReaderProvider(t)
	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)

	metrics.RecordSyncDuration(context.Background(), 1500*time.Millisecond, false, true)

	m, ok := collect(t, reader, SyncMetricsMeterName, "plugin_mirror_sync_duration_seconds")
	require.True(t, ok, "expected duration metric")

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected histogram data type")
	require.NotEmpty(t, hist.DataPoints)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)
}

func TestSyncMetrics_RecordRecordUpdated(t *testing.T) {
	t.Parallel()

	reader, mp := newReaderProvider(t)
	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordRecordUpdated(ctx, "new")
	metrics.RecordRecordUpdated(ctx, "version")
	metrics.RecordRecordUpdated(ctx, "version")
	metrics.RecordPageFetched(ctx, true)

	m, ok := collect(t, reader, SyncMetricsMeterName, "plugin_mirror_sync_records_updated_total")
	require.True(t, ok, "expected records metric")

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byKind := map[string]int64{}
	for _, dp := range sum.DataPoints {
		kind, _ := dp.Attributes.Value("kind")
		byKind[kind.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"new": 1, "version": 2}, byKind)

	_, ok = collect(t, reader, SyncMetricsMeterName, "plugin_mirror_sync_pages_fetched_total")
	assert.True(t, ok, "expected pages metric")
}

func TestNotifyMetrics_RecordDelivery(t *testing.T) {
	t.Parallel()

	reader, mp := newReaderProvider(t)
	metrics, err := NewNotifyMetrics(mp)
	require.NoError(t, err)

	metrics.RecordDelivery(context.Background(), "pubsub", true)
	metrics.RecordDelivery(context.Background(), "webhook", false)

	m, ok := collect(t, reader, NotifyMetricsMeterName, "plugin_mirror_notify_deliveries_total")
	require.True(t, ok)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, sum.DataPoints, 2)
}
