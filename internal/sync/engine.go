package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/plugin-mirror/internal/cache"
	"github.com/stacklok/plugin-mirror/internal/cursor"
	"github.com/stacklok/plugin-mirror/internal/feed"
	"github.com/stacklok/plugin-mirror/internal/filtering"
	"github.com/stacklok/plugin-mirror/internal/notify"
	"github.com/stacklok/plugin-mirror/internal/otel"
	"github.com/stacklok/plugin-mirror/internal/status"
	"github.com/stacklok/plugin-mirror/internal/telemetry"
)

// DefaultPageSize is the listing page size requested from the feed
const DefaultPageSize = 250

// Failure reasons carried by Error
const (
	ReasonFetchFailed = "FetchFailed"
	ReasonCancelled   = "Cancelled"
)

// Error represents a failed run with a machine readable reason
type Error struct {
	Err     error
	Message string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TriggerOptions configures a single run
type TriggerOptions struct {
	// Force disables the early stop at the cursor
	Force bool

	// Reason names what started the run, for logs and the summary
	Reason string
}

// Runner starts runs and reports their status
//
//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks -source=engine.go Runner
type Runner interface {
	// Trigger runs a synchronization and returns its final summary, or an
	// already-in-progress summary when another run is active
	Trigger(ctx context.Context, opts TriggerOptions) *status.RunSummary

	// Status returns the active run, else the last run, else an idle summary
	Status() *status.RunSummary
}

// RecordStore is the part of the cache the engine writes through
type RecordStore interface {
	Get(ctx context.Context, key string) (*cache.Entry, bool)
	Set(ctx context.Context, e *cache.Entry) (cache.Change, error)
	LatestRecord(ctx context.Context) (*cache.Entry, error)
}

// Publisher fans change events out to the notification sinks
type Publisher interface {
	Publish(ctx context.Context, event notify.Event) int
}

// Engine runs synchronizations of the feed into the record store
type Engine struct {
	feed     feed.Client
	store    RecordStore
	marker   status.MarkerStore
	notifier Publisher
	filter   *filtering.Filter

	pageSize   int
	maxPages   int
	maxRecords int

	metrics *telemetry.SyncMetrics
	tracer  trace.Tracer
	now     func() time.Time

	running atomic.Bool

	mu      gosync.RWMutex
	current *status.RunSummary
	last    *status.RunSummary
}

var _ Runner = (*Engine)(nil)

// Option configures an Engine
type Option func(*Engine)

// WithNotifier sets where change events are published
func WithNotifier(p Publisher) Option {
	return func(e *Engine) {
		e.notifier = p
	}
}

// WithFilter sets the slug and tag filter applied during the walk
func WithFilter(f *filtering.Filter) Option {
	return func(e *Engine) {
		e.filter = f
	}
}

// WithPageSize sets the listing page size
func WithPageSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.pageSize = size
		}
	}
}

// WithLimits caps the pages walked and records stored per run. Filtered
// records do not count. Zero means unlimited.
func WithLimits(maxPages, maxRecords int) Option {
	return func(e *Engine) {
		e.maxPages = maxPages
		e.maxRecords = maxRecords
	}
}

// WithMetrics sets the sync metrics
func WithMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithTracer sets the tracer for run spans
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func withClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine reading from client and writing to store
func NewEngine(client feed.Client, store RecordStore, marker status.MarkerStore, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("feed client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if marker == nil {
		return nil, fmt.Errorf("marker store is required")
	}

	e := &Engine{
		feed:     client,
		store:    store,
		marker:   marker,
		pageSize: DefaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Trigger implements Runner. It blocks until the run ends.
func (e *Engine) Trigger(ctx context.Context, opts TriggerOptions) *status.RunSummary {
	if !e.running.CompareAndSwap(false, true) {
		slog.InfoContext(ctx, "Sync already in progress, rejecting trigger",
			"reason", opts.Reason,
			"force", opts.Force)
		return status.AlreadyInProgress()
	}
	defer e.running.Store(false)

	started := e.now()
	summary := &status.RunSummary{
		RunID:     uuid.NewString(),
		Force:     opts.Force,
		Reason:    opts.Reason,
		StartedAt: &started,
	}
	summary.SetStatus(status.RunStatusInProgress)

	e.mu.Lock()
	e.current = summary
	e.mu.Unlock()

	ctx, span := otel.StartSpan(ctx, e.tracer, "sync.Run",
		trace.WithAttributes(
			otel.AttrSyncRunID.String(summary.RunID),
			otel.AttrSyncForce.Bool(opts.Force),
		))
	defer span.End()

	logger := slog.With("run_id", summary.RunID)
	logger.InfoContext(ctx, "Starting sync", "reason", opts.Reason, "force", opts.Force)

	runErr := e.run(ctx, summary, logger)

	e.mu.Lock()
	if runErr != nil {
		summary.SetStatus(status.RunStatusFailed)
		summary.StopReason = status.StopError
		summary.Error = runErr.Error()
	} else {
		summary.SetStatus(status.RunStatusCompleted)
	}
	summary.Finish(e.now())
	e.last = summary
	e.current = nil
	result := summary.Clone()
	e.mu.Unlock()

	e.metrics.RecordSyncDuration(ctx, e.now().Sub(started), opts.Force, runErr == nil)

	if runErr != nil {
		otel.RecordError(span, runErr)
		logger.ErrorContext(ctx, "Sync failed",
			"error", runErr,
			"pages_walked", result.PagesWalked,
			"records_updated", result.RecordsUpdated)
	} else {
		logger.InfoContext(ctx, "Sync completed",
			"stop_reason", result.StopReason,
			"pages_walked", result.PagesWalked,
			"records_processed", result.RecordsProcessed,
			"records_updated", result.RecordsUpdated,
			"final_cursor", result.FinalCursor,
			"duration", result.Duration)
	}

	return result
}

// Status implements Runner
func (e *Engine) Status() *status.RunSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch {
	case e.current != nil:
		return e.current.Clone()
	case e.last != nil:
		return e.last.Clone()
	default:
		return status.Idle()
	}
}

// update mutates the active summary under the lock so Status readers see
// consistent counters
func (e *Engine) update(summary *status.RunSummary, fn func(s *status.RunSummary)) {
	e.mu.Lock()
	fn(summary)
	e.mu.Unlock()
}

// resolveCursor returns the newest mirrored modification time: the newest
// stored record, else the side marker, else the epoch.
func (e *Engine) resolveCursor(ctx context.Context, logger *slog.Logger) time.Time {
	latest, err := e.store.LatestRecord(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Failed to read newest stored record", "error", err)
	}
	if latest != nil {
		logger.DebugContext(ctx, "Resolved cursor from stored records", "slug", latest.Slug)
		return latest.LastUpdatedTime
	}

	text, ok, err := e.marker.Load(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Failed to read side marker", "error", err)
	}
	if ok {
		logger.DebugContext(ctx, "Resolved cursor from side marker", "marker", text)
		return cursor.Decode(text)
	}

	logger.DebugContext(ctx, "No cursor found, starting from epoch")
	return cursor.Epoch
}

func fetchFailure(page int, err error) *Error {
	reason := ReasonFetchFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		reason = ReasonCancelled
	}
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("failed to fetch page %d", page),
		Reason:  reason,
	}
}
