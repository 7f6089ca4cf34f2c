package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/plugin-mirror/internal/otel"
	"github.com/stacklok/plugin-mirror/internal/telemetry"
)

const (
	tierFast    = "fast"
	tierDurable = "durable"

	// DefaultReconnectInitial is the first wait before probing a lost durable tier
	DefaultReconnectInitial = time.Second
	// DefaultReconnectMax caps the wait between probes
	DefaultReconnectMax = 2 * time.Minute
)

// Store is the two-tier record store.
type Store struct {
	fast    *memoryTier
	durable Durable
	metrics *telemetry.CacheMetrics
	tracer  trace.Tracer
	now     func() time.Time

	// writeMu orders fast and durable writes of Set against a flush
	writeMu sync.Mutex

	mu        sync.Mutex
	available bool
	retryAt   time.Time
	backoff   *backoff.ExponentialBackOff
	// pending holds keys whose fast tier value has not reached the durable tier
	pending map[string]struct{}
}

// Option configures a Store
type Option func(*Store)

// WithDurable sets the durable tier. Without one the store is memory-only.
func WithDurable(d Durable) Option {
	return func(s *Store) {
		s.durable = d
	}
}

// WithMetrics sets the cache metrics
func WithMetrics(metrics *telemetry.CacheMetrics) Option {
	return func(s *Store) {
		s.metrics = metrics
	}
}

// WithTracer sets the tracer for store spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// WithReconnectBackoff sets the wait between durable tier probes after a failure
func WithReconnectBackoff(initial, maxInterval time.Duration) Option {
	return func(s *Store) {
		s.backoff.InitialInterval = initial
		s.backoff.MaxInterval = maxInterval
		s.backoff.Reset()
	}
}

// withClock overrides time.Now in tests
func withClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates the store and probes the durable tier once. An
// unreachable durable tier is not an error: the store starts degraded.
func NewStore(ctx context.Context, opts ...Option) *Store {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultReconnectInitial
	b.MaxInterval = DefaultReconnectMax
	b.Reset()

	s := &Store{
		fast:    newMemoryTier(),
		now:     time.Now,
		backoff: b,
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.durable == nil {
		slog.Info("Record store running without a durable tier")
		return s
	}

	if err := s.durable.Ping(ctx); err != nil {
		slog.Warn("Durable tier unreachable at startup, serving from memory", "error", err)
		s.retryAt = s.now().Add(s.nextBackOff())
		return s
	}
	s.available = true
	return s
}

// Get returns the entry for key from the fast tier, falling back to the
// durable tier and repairing the fast tier on a durable hit. Absence and
// durable failures both report false.
func (s *Store) Get(ctx context.Context, key string) (*Entry, bool) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "cache.Get")
	defer span.End()

	if e, ok := s.fast.get(key); ok {
		s.metrics.RecordLookup(ctx, tierFast, true)
		span.SetAttributes(otel.AttrCacheTier.String(tierFast), otel.AttrCacheHit.Bool(true))
		return e, true
	}
	s.metrics.RecordLookup(ctx, tierFast, false)

	if !s.durableAvailable(ctx) {
		span.SetAttributes(otel.AttrCacheHit.Bool(false))
		return nil, false
	}

	e, err := s.durable.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		s.metrics.RecordLookup(ctx, tierDurable, false)
		span.SetAttributes(otel.AttrCacheHit.Bool(false))
		return nil, false
	}
	if err != nil {
		s.durableFailed(ctx, "get", err)
		span.SetAttributes(otel.AttrCacheHit.Bool(false))
		return nil, false
	}

	s.metrics.RecordLookup(ctx, tierDurable, true)
	span.SetAttributes(otel.AttrCacheTier.String(tierDurable), otel.AttrCacheHit.Bool(true))
	s.fast.fill(e)
	return e, true
}

// Set writes e to the fast tier and then to the durable tier. The returned
// Change comes from the durable tier when it was written, otherwise from the
// fast tier. A value the fast tier already held is never reported as a
// change: the durable tier is only catching up on a write that was already
// reported. A failed durable write returns an error wrapping
// ErrDurableUnavailable; the fast tier write still stands and is copied to
// the durable tier once it is reachable again.
func (s *Store) Set(ctx context.Context, e *Entry) (Change, error) {
	if e == nil || e.Key == "" {
		return ChangeNone, fmt.Errorf("cache entry requires a key")
	}

	ctx, span := otel.StartSpan(ctx, s.tracer, "cache.Set",
		trace.WithAttributes(otel.AttrPluginSlug.String(e.Slug)))
	defer span.End()

	if s.durable == nil {
		return s.fast.swap(e), nil
	}

	available := s.durableAvailable(ctx)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	fastChange := s.fast.swap(e)
	if !available {
		s.markPending(e.Key)
		return fastChange, fmt.Errorf("%w: %s kept in memory only", ErrDurableUnavailable, e.Key)
	}

	change, err := s.durable.Upsert(ctx, e)
	if err != nil {
		s.markPending(e.Key)
		s.durableFailed(ctx, "upsert", err)
		otel.RecordError(span, err)
		return fastChange, fmt.Errorf("%w: %w", ErrDurableUnavailable, err)
	}
	s.clearPending(e.Key)

	if fastChange == ChangeNone {
		change = ChangeNone
	}
	span.SetAttributes(otel.AttrChangeResult.String(change.String()))
	return change, nil
}

// LatestRecord returns the record with the greatest LastUpdatedTime, or nil
// when there are no records. The durable tier answers when reachable; a
// degraded store answers from memory.
func (s *Store) LatestRecord(ctx context.Context) (*Entry, error) {
	if s.durableAvailable(ctx) {
		e, err := s.durable.Latest(ctx)
		switch {
		case err == nil:
			return e, nil
		case errors.Is(err, ErrNotFound):
			return nil, nil
		default:
			s.durableFailed(ctx, "latest", err)
		}
	}

	if e, ok := s.fast.latest(); ok {
		return e, nil
	}
	return nil, nil
}

// ListRecords returns a page of records from the durable tier and the total
// record count. It never consults the fast tier or the remote feed.
func (s *Store) ListRecords(ctx context.Context, opts ListOptions) ([]*Entry, int, error) {
	if !s.durableAvailable(ctx) {
		return nil, 0, ErrDurableUnavailable
	}

	entries, total, err := s.durable.List(ctx, opts)
	if err != nil {
		s.durableFailed(ctx, "list", err)
		return nil, 0, fmt.Errorf("%w: %w", ErrDurableUnavailable, err)
	}
	return entries, total, nil
}

// Ping reports whether the durable tier is reachable. A successful ping
// also ends a degraded period early.
func (s *Store) Ping(ctx context.Context) error {
	if s.durable == nil {
		return nil
	}
	if err := s.durable.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDurableUnavailable, err)
	}
	s.markAvailable()
	s.flushPending(ctx)
	return nil
}

// Pending returns the number of fast tier writes not yet copied to the durable tier
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Degraded reports whether the store is currently serving from memory only
func (s *Store) Degraded() bool {
	if s.durable == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.available
}

// durableAvailable reports whether the durable tier may be used. While
// degraded, at most one caller per backoff interval probes it with a ping.
func (s *Store) durableAvailable(ctx context.Context) bool {
	if s.durable == nil {
		return false
	}

	s.mu.Lock()
	if s.available {
		s.mu.Unlock()
		return true
	}
	now := s.now()
	if now.Before(s.retryAt) {
		s.mu.Unlock()
		return false
	}
	s.retryAt = now.Add(s.nextBackOff())
	s.mu.Unlock()

	if err := s.durable.Ping(ctx); err != nil {
		slog.Debug("Durable tier still unreachable", "error", err)
		return false
	}
	s.markAvailable()
	s.flushPending(ctx)
	return s.isAvailable()
}

func (s *Store) isAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

func (s *Store) markPending(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = struct{}{}
}

func (s *Store) clearPending(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
}

// flushPending copies fast tier values written while the durable tier was
// unreachable. It stops at the first failure and keeps the remaining keys.
func (s *Store) flushPending(ctx context.Context) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.pending))
	for key := range s.pending {
		keys = append(keys, key)
	}
	s.mu.Unlock()
	if len(keys) == 0 {
		return
	}

	flushed := 0
	for _, key := range keys {
		err := s.flushKey(ctx, key)
		if err == nil {
			flushed++
			continue
		}
		s.durableFailed(ctx, "flush", err)
		if isConnectivityError(err) {
			slog.Warn("Stopped copying memory-only entries to the durable tier",
				"flushed", flushed,
				"remaining", s.Pending(),
				"error", err)
			return
		}
		// The durable tier rejected the value itself; a later Set retries it.
		s.clearPending(key)
	}
	slog.Info("Copied memory-only entries to the durable tier", "count", flushed)
}

func (s *Store) flushKey(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	_, ok := s.pending[key]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	e, ok := s.fast.get(key)
	if ok {
		if _, err := s.durable.Upsert(ctx, e); err != nil {
			return err
		}
	}
	s.clearPending(key)
	return nil
}

func (s *Store) markAvailable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		slog.Info("Durable tier reachable again")
	}
	s.available = true
	s.backoff.Reset()
}

// durableFailed records a durable tier error. Connectivity errors switch
// the store to memory-only until the next successful probe.
func (s *Store) durableFailed(ctx context.Context, op string, err error) {
	s.metrics.RecordDurableError(ctx, op)

	if !isConnectivityError(err) {
		slog.Warn("Durable tier operation failed", "operation", op, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.available {
		s.available = false
		s.backoff.Reset()
		s.retryAt = s.now().Add(s.nextBackOff())
		slog.Warn("Durable tier unreachable, serving from memory",
			"operation", op,
			"retry_at", s.retryAt,
			"error", err)
	}
}

// nextBackOff must be called with s.mu held.
func (s *Store) nextBackOff() time.Duration {
	d := s.backoff.NextBackOff()
	if d == backoff.Stop {
		return s.backoff.MaxInterval
	}
	return d
}

func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
