// Package otel provides tracing helpers shared by the store, the feed client and the sync engine.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Attribute keys used across spans.
const (
	AttrPluginSlug   = attribute.Key("plugin.slug")
	AttrCacheTier    = attribute.Key("cache.tier")
	AttrCacheHit     = attribute.Key("cache.hit")
	AttrFeedAction   = attribute.Key("feed.action")
	AttrPage         = attribute.Key("pagination.page")
	AttrPageSize     = attribute.Key("pagination.limit")
	AttrResultCount  = attribute.Key("result.count")
	AttrSyncRunID    = attribute.Key("sync.run_id")
	AttrSyncForce    = attribute.Key("sync.force")
	AttrNotifySink   = attribute.Key("notify.sink")
	AttrChangeResult = attribute.Key("cache.change")
)

// StartSpan starts a span when tracer is non-nil and otherwise returns a
// no-op span, leaving any parent span in ctx untouched.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, noop.Span{}
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError marks the span failed. The status text stays generic so that
// connection strings or URLs never land in the span status; the error itself
// is kept as a span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
