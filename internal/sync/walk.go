package sync

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/plugin-mirror/internal/cache"
	"github.com/stacklok/plugin-mirror/internal/cursor"
	"github.com/stacklok/plugin-mirror/internal/feed"
	"github.com/stacklok/plugin-mirror/internal/notify"
	"github.com/stacklok/plugin-mirror/internal/otel"
	"github.com/stacklok/plugin-mirror/internal/registry"
	"github.com/stacklok/plugin-mirror/internal/status"
	"github.com/stacklok/plugin-mirror/internal/versions"
)

// Update kinds recorded for changed records
const (
	UpdateNew       = "new"
	UpdateVersion   = "version"
	UpdateDowngrade = "downgrade"
	UpdateMetadata  = "metadata"
)

// run walks the feed and fills summary. It returns a *Error when a page
// could not be fetched.
func (e *Engine) run(ctx context.Context, summary *status.RunSummary, logger *slog.Logger) error {
	start := e.resolveCursor(ctx, logger)
	e.update(summary, func(s *status.RunSummary) {
		s.StartCursor = cursor.Encode(start)
	})

	candidate := start
	stop := status.StopEndOfFeed
	stored := 0

walk:
	for page := 1; ; page++ {
		if e.maxPages > 0 && page > e.maxPages {
			logger.InfoContext(ctx, "Reached page limit", "max_pages", e.maxPages)
			stop = status.StopPageLimit
			break
		}

		listing, err := e.fetchPage(ctx, page)
		if err != nil {
			return fetchFailure(page, err)
		}
		e.update(summary, func(s *status.RunSummary) { s.PagesWalked++ })

		if len(listing.Plugins) == 0 {
			logger.DebugContext(ctx, "Empty page, no more plugins", "page", page)
			break
		}
		logger.DebugContext(ctx, "Processing page", "page", page, "plugins", len(listing.Plugins))

		for _, plugin := range listing.Plugins {
			if e.maxRecords > 0 && stored >= e.maxRecords {
				logger.InfoContext(ctx, "Reached record limit", "max_records", e.maxRecords)
				stop = status.StopRecordLimit
				break walk
			}

			plugin.Normalize()
			if !summary.Force && !plugin.LastUpdatedTime.After(start) {
				logger.InfoContext(ctx, "Reached plugin not newer than cursor",
					"slug", plugin.Slug,
					"last_updated", plugin.LastUpdated)
				stop = status.StopCursorReached
				break walk
			}

			e.update(summary, func(s *status.RunSummary) { s.RecordsProcessed++ })

			if ok, reason := e.filter.ShouldInclude(plugin); !ok {
				logger.DebugContext(ctx, "Skipping filtered plugin", "slug", plugin.Slug, "reason", reason)
				e.update(summary, func(s *status.RunSummary) { s.RecordsSkipped++ })
				continue
			}

			written, updated, acked := e.apply(ctx, plugin, logger)
			if !written {
				e.update(summary, func(s *status.RunSummary) { s.RecordsSkipped++ })
				continue
			}
			stored++
			if plugin.LastUpdatedTime.After(candidate) {
				candidate = plugin.LastUpdatedTime
			}
			e.update(summary, func(s *status.RunSummary) {
				if updated {
					s.RecordsUpdated++
				}
				s.NotificationsSent += acked
				s.FinalCursor = cursor.Encode(candidate)
			})
		}

		if listing.Info.Pages > 0 && page >= listing.Info.Pages {
			logger.DebugContext(ctx, "Reached last page", "page", page)
			break
		}
	}

	final := cursor.Encode(candidate)
	e.update(summary, func(s *status.RunSummary) {
		s.StopReason = stop
		s.FinalCursor = final
	})

	if err := e.marker.Save(ctx, final); err != nil {
		// The durable tier stays the source of truth; the marker only seeds empty stores.
		logger.WarnContext(ctx, "Failed to save side marker", "error", err)
	}
	return nil
}

func (e *Engine) fetchPage(ctx context.Context, page int) (*feed.Page, error) {
	req := feed.PageRequest{Page: page, PerPage: e.pageSize, Browse: feed.BrowseUpdated}

	listing, err := e.feed.FetchPage(ctx, req)
	e.metrics.RecordPageFetched(ctx, err == nil)
	if err != nil {
		return nil, err
	}

	// Keep the raw listing so the same query can be answered while the durable tier is down
	if len(listing.Raw) > 0 {
		key := cache.KeyFor(feed.InfoPath, feed.PageQuery(req))
		if _, err := e.store.Set(ctx, cache.NewResponseEntry(key, listing.Raw)); err != nil {
			slog.DebugContext(ctx, "Listing response kept in memory only", "page", page, "error", err)
		}
	}
	return listing, nil
}

// apply upserts one plugin and publishes a change event when the stored
// value changed. written is false when the record could not be stored at all.
func (e *Engine) apply(ctx context.Context, plugin *registry.Plugin, logger *slog.Logger) (written, updated bool, acked int) {
	ctx, span := otel.StartSpan(ctx, e.tracer, "sync.ApplyRecord",
		trace.WithAttributes(otel.AttrPluginSlug.String(plugin.Slug)))
	defer span.End()

	entry, err := cache.NewRecordEntry(plugin)
	if err != nil {
		otel.RecordError(span, err)
		logger.WarnContext(ctx, "Skipping invalid plugin record", "error", err)
		return false, false, 0
	}

	previous, existed := e.store.Get(ctx, entry.Key)

	change, err := e.store.Set(ctx, entry)
	if err != nil {
		if !errors.Is(err, cache.ErrDurableUnavailable) {
			otel.RecordError(span, err)
			logger.ErrorContext(ctx, "Failed to store plugin", "slug", plugin.Slug, "error", err)
			return false, false, 0
		}
		logger.WarnContext(ctx, "Stored plugin in memory only", "slug", plugin.Slug, "error", err)
	}
	span.SetAttributes(otel.AttrChangeResult.String(change.String()))

	if !change.Changed() {
		logger.DebugContext(ctx, "Plugin unchanged", "slug", plugin.Slug)
		return true, false, 0
	}

	kind := classify(previous, existed, plugin)
	e.metrics.RecordRecordUpdated(ctx, kind)
	logger.InfoContext(ctx, "Updated plugin",
		"slug", plugin.Slug,
		"last_updated", plugin.LastUpdated,
		"update", kind)

	if e.notifier != nil {
		acked = e.notifier.Publish(ctx, notify.EventFor(plugin))
	}
	return true, true, acked
}

// classify names what changed between the previously stored record and plugin
func classify(previous *cache.Entry, existed bool, plugin *registry.Plugin) string {
	if !existed || previous == nil {
		return UpdateNew
	}
	old, err := previous.Plugin()
	if err != nil {
		return UpdateMetadata
	}

	switch {
	case versions.IsNewerVersion(plugin.Version(), old.Version()):
		return UpdateVersion
	case versions.Differs(plugin.Version(), old.Version()):
		return UpdateDowngrade
	default:
		return UpdateMetadata
	}
}
