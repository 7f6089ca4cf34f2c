// Package telemetry provides OpenTelemetry instrumentation for the plugin mirror.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// CacheMetricsMeterName is the name used for the record store metrics meter
	CacheMetricsMeterName = "github.com/stacklok/plugin-mirror/cache"

	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/plugin-mirror/sync"

	// NotifyMetricsMeterName is the name used for the notification metrics meter
	NotifyMetricsMeterName = "github.com/stacklok/plugin-mirror/notify"
)

// CacheMetrics holds the OpenTelemetry instruments for the two-tier record store
type CacheMetrics struct {
	lookups       metric.Int64Counter
	durableErrors metric.Int64Counter
}

// NewCacheMetrics creates a new CacheMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCacheMetrics(provider metric.MeterProvider) (*CacheMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CacheMetricsMeterName)

	lookups, err := meter.Int64Counter(
		"plugin_mirror_cache_lookups_total",
		metric.WithDescription("Number of record store lookups by tier and outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	durableErrors, err := meter.Int64Counter(
		"plugin_mirror_cache_durable_errors_total",
		metric.WithDescription("Number of failed durable tier operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &CacheMetrics{
		lookups:       lookups,
		durableErrors: durableErrors,
	}, nil
}

// RecordLookup records a lookup against one tier ("fast" or "durable")
func (m *CacheMetrics) RecordLookup(ctx context.Context, tier string, hit bool) {
	if m == nil || m.lookups == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tier", tier),
		attribute.Bool("hit", hit),
	}

	m.lookups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDurableError records a failed durable tier operation
func (m *CacheMetrics) RecordDurableError(ctx context.Context, operation string) {
	if m == nil || m.durableErrors == nil {
		return
	}

	m.durableErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// SyncMetrics holds the OpenTelemetry instruments for sync operation metrics
type SyncMetrics struct {
	syncDuration   metric.Float64Histogram
	recordsUpdated metric.Int64Counter
	pagesFetched   metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"plugin_mirror_sync_duration_seconds",
		metric.WithDescription("Duration of sync runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900),
	)
	if err != nil {
		return nil, err
	}

	recordsUpdated, err := meter.Int64Counter(
		"plugin_mirror_sync_records_updated_total",
		metric.WithDescription("Number of plugin records changed by sync runs"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	pagesFetched, err := meter.Int64Counter(
		"plugin_mirror_sync_pages_fetched_total",
		metric.WithDescription("Number of remote feed pages fetched by sync runs"),
		metric.WithUnit("{page}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:   syncDuration,
		recordsUpdated: recordsUpdated,
		pagesFetched:   pagesFetched,
	}, nil
}

// RecordSyncDuration records the duration of a sync run
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, duration time.Duration, forced, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("forced", forced),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRecordUpdated records one changed record. kind is "new", "version" or "metadata".
func (m *SyncMetrics) RecordRecordUpdated(ctx context.Context, kind string) {
	if m == nil || m.recordsUpdated == nil {
		return
	}

	m.recordsUpdated.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordPageFetched records one fetched feed page
func (m *SyncMetrics) RecordPageFetched(ctx context.Context, success bool) {
	if m == nil || m.pagesFetched == nil {
		return
	}

	m.pagesFetched.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// NotifyMetrics holds the OpenTelemetry instruments for notification delivery
type NotifyMetrics struct {
	deliveries metric.Int64Counter
}

// NewNotifyMetrics creates a new NotifyMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewNotifyMetrics(provider metric.MeterProvider) (*NotifyMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(NotifyMetricsMeterName)

	deliveries, err := meter.Int64Counter(
		"plugin_mirror_notify_deliveries_total",
		metric.WithDescription("Number of change event deliveries by sink and outcome"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}

	return &NotifyMetrics{deliveries: deliveries}, nil
}

// RecordDelivery records one delivery attempt to a sink
func (m *NotifyMetrics) RecordDelivery(ctx context.Context, sink string, success bool) {
	if m == nil || m.deliveries == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("sink", sink),
		attribute.Bool("success", success),
	}

	m.deliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
}
