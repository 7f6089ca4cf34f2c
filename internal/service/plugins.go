package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/plugin-mirror/internal/cache"
	"github.com/stacklok/plugin-mirror/internal/feed"
	"github.com/stacklok/plugin-mirror/internal/otel"
	"github.com/stacklok/plugin-mirror/internal/registry"
)

// PluginService implements Service on top of the record store and the feed
type PluginService struct {
	store  Store
	feed   feed.Client
	tracer trace.Tracer
}

var _ Service = (*PluginService)(nil)

// ServiceOption configures a PluginService
type ServiceOption func(*PluginService)

// WithTracer sets the tracer for service spans
func WithTracer(tracer trace.Tracer) ServiceOption {
	return func(s *PluginService) {
		s.tracer = tracer
	}
}

// New creates a PluginService
func New(store Store, client feed.Client, opts ...ServiceOption) (*PluginService, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("feed client is required")
	}

	s := &PluginService{store: store, feed: client}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckReadiness implements Service
func (s *PluginService) CheckReadiness(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("record store not ready: %w", err)
	}
	return nil
}

// PluginInformation implements Service. A miss in the store is fetched from
// the feed and written back.
func (s *PluginService) PluginInformation(ctx context.Context, slug string) (*registry.Plugin, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, &ValidationError{Field: "slug", Message: "is required"}
	}

	ctx, span := otel.StartSpan(ctx, s.tracer, "service.PluginInformation",
		trace.WithAttributes(otel.AttrPluginSlug.String(slug)))
	defer span.End()

	key := cache.KeyForRecord(slug)
	if entry, ok := s.store.Get(ctx, key); ok {
		plugin, err := entry.Plugin()
		if err == nil {
			span.SetAttributes(otel.AttrCacheHit.Bool(true))
			return plugin, nil
		}
		slog.WarnContext(ctx, "Stored plugin is unreadable, refetching", "slug", slug, "error", err)
	}
	span.SetAttributes(otel.AttrCacheHit.Bool(false))

	plugin, err := s.feed.FetchPlugin(ctx, slug)
	if errors.Is(err, feed.ErrPluginNotFound) {
		return nil, ErrPluginNotFound
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to fetch plugin %s: %w", slug, err)
	}

	entry, err := cache.NewRecordEntry(plugin)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	if _, err := s.store.Set(ctx, entry); err != nil {
		slog.WarnContext(ctx, "Fetched plugin kept in memory only", "slug", slug, "error", err)
	}
	return plugin, nil
}

// QueryPlugins implements Service. Listings come from the durable tier; when
// it is down, a cached response for the same query is served instead. The
// feed is never contacted.
func (s *PluginService) QueryPlugins(ctx context.Context, opts ...Option[QueryOptions]) (*registry.PluginList, error) {
	q := defaultQueryOptions()
	for _, opt := range opts {
		if err := opt(&q); err != nil {
			return nil, err
		}
	}

	ctx, span := otel.StartSpan(ctx, s.tracer, "service.QueryPlugins",
		trace.WithAttributes(
			otel.AttrPage.Int(q.Page),
			otel.AttrPageSize.Int(q.PerPage),
		))
	defer span.End()

	sort := ""
	if q.Browse == feed.BrowseUpdated {
		sort = cache.SortUpdated
	}

	entries, total, err := s.store.ListRecords(ctx, cache.ListOptions{Page: q.Page, PerPage: q.PerPage, Sort: sort})
	if errors.Is(err, cache.ErrDurableUnavailable) {
		return s.cachedListing(ctx, q)
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}

	list := &registry.PluginList{
		Info: registry.ListInfo{
			Page:    q.Page,
			Pages:   (total + q.PerPage - 1) / q.PerPage,
			Results: total,
		},
		Plugins: make([]*registry.Plugin, 0, len(entries)),
	}
	for _, entry := range entries {
		plugin, err := entry.Plugin()
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable stored plugin", "slug", entry.Slug, "error", err)
			continue
		}
		list.Plugins = append(list.Plugins, plugin)
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(list.Plugins)))
	return list, nil
}

func (s *PluginService) cachedListing(ctx context.Context, q QueryOptions) (*registry.PluginList, error) {
	key := cache.KeyFor(feed.InfoPath, feed.PageQuery(q.request()))
	entry, ok := s.store.Get(ctx, key)
	if !ok {
		return nil, ErrUnavailable
	}

	var list registry.PluginList
	if err := json.Unmarshal(entry.Value, &list); err != nil {
		return nil, fmt.Errorf("failed to decode cached listing: %w", err)
	}
	slog.DebugContext(ctx, "Served listing from cached response", "page", q.Page)
	return &list, nil
}
