package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/plugin-mirror/internal/otel"
)

// Durable is the system-of-record tier of the store.
//
//go:generate mockgen -destination=mocks/mock_durable.go -package=mocks -source=postgres.go Durable
type Durable interface {
	// Get returns ErrNotFound when the key is absent
	Get(ctx context.Context, key string) (*Entry, error)

	// Upsert writes e and reports whether it inserted, updated or left the row unchanged
	Upsert(ctx context.Context, e *Entry) (Change, error)

	// Latest returns the record entry with the greatest last_updated_time, or ErrNotFound
	Latest(ctx context.Context) (*Entry, error)

	// List returns a page of record entries and the total record count
	List(ctx context.Context, opts ListOptions) ([]*Entry, int, error)

	// Ping checks connectivity
	Ping(ctx context.Context) error
}

const entryColumns = "key, kind, slug, last_updated, last_updated_time, value"

const (
	getEntrySQL = `SELECT ` + entryColumns + ` FROM cache_entries WHERE key = $1`

	// The WHERE clause turns an identical rewrite into a no-op, so no row is
	// returned; xmax = 0 distinguishes a fresh insert from an update.
	upsertEntrySQL = `
INSERT INTO cache_entries (key, kind, slug, last_updated, last_updated_time, value)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
ON CONFLICT (key) DO UPDATE SET
    kind = EXCLUDED.kind,
    slug = EXCLUDED.slug,
    last_updated = EXCLUDED.last_updated,
    last_updated_time = EXCLUDED.last_updated_time,
    value = EXCLUDED.value,
    updated_at = now()
WHERE cache_entries.value IS DISTINCT FROM EXCLUDED.value
RETURNING (xmax = 0) AS inserted`

	latestRecordSQL = `SELECT ` + entryColumns + ` FROM cache_entries
WHERE kind = 'record'
ORDER BY last_updated_time DESC NULLS LAST
LIMIT 1`

	countRecordsSQL = `SELECT count(*) FROM cache_entries WHERE kind = 'record'`

	listRecordsByUpdatedSQL = `SELECT ` + entryColumns + ` FROM cache_entries
WHERE kind = 'record'
ORDER BY last_updated_time DESC NULLS LAST, key
LIMIT $1 OFFSET $2`

	listRecordsByStorageSQL = `SELECT ` + entryColumns + ` FROM cache_entries
WHERE kind = 'record'
ORDER BY created_at, key
LIMIT $1 OFFSET $2`
)

// PostgresTier is the durable tier backed by the cache_entries table.
type PostgresTier struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ Durable = (*PostgresTier)(nil)

// PostgresOption configures a PostgresTier
type PostgresOption func(*PostgresTier)

// WithPostgresTracer sets the tracer for durable tier spans. Nil disables tracing.
func WithPostgresTracer(tracer trace.Tracer) PostgresOption {
	return func(p *PostgresTier) {
		p.tracer = tracer
	}
}

// NewPostgresTier wraps pool. The caller owns the pool and closes it.
func NewPostgresTier(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresTier, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	p := &PostgresTier{pool: pool}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *PostgresTier) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append([]trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.DBSystemPostgreSQL, otel.AttrCacheTier.String("durable")),
	}, opts...)
	return otel.StartSpan(ctx, p.tracer, name, opts...)
}

// Get implements Durable
func (p *PostgresTier) Get(ctx context.Context, key string) (*Entry, error) {
	ctx, span := p.startSpan(ctx, "cache.durable.Get")
	defer span.End()

	e, err := scanEntry(p.pool.QueryRow(ctx, getEntrySQL, key))
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetAttributes(otel.AttrCacheHit.Bool(false))
		return nil, ErrNotFound
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	span.SetAttributes(otel.AttrCacheHit.Bool(true))
	return e, nil
}

// Upsert implements Durable
func (p *PostgresTier) Upsert(ctx context.Context, e *Entry) (Change, error) {
	ctx, span := p.startSpan(ctx, "cache.durable.Upsert")
	defer span.End()

	var lastUpdatedTime *time.Time
	if e.Kind == KindRecord {
		t := e.LastUpdatedTime.UTC()
		lastUpdatedTime = &t
	}

	var inserted bool
	err := p.pool.QueryRow(ctx, upsertEntrySQL,
		e.Key, string(e.Kind), e.Slug, e.LastUpdated, lastUpdatedTime, []byte(e.Value),
	).Scan(&inserted)

	change := ChangeUpdated
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		change = ChangeNone
	case err != nil:
		otel.RecordError(span, err)
		return ChangeNone, fmt.Errorf("failed to upsert cache entry: %w", err)
	case inserted:
		change = ChangeInserted
	}

	span.SetAttributes(otel.AttrChangeResult.String(change.String()))
	return change, nil
}

// Latest implements Durable
func (p *PostgresTier) Latest(ctx context.Context) (*Entry, error) {
	ctx, span := p.startSpan(ctx, "cache.durable.Latest")
	defer span.End()

	e, err := scanEntry(p.pool.QueryRow(ctx, latestRecordSQL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to get latest record: %w", err)
	}
	return e, nil
}

// List implements Durable
func (p *PostgresTier) List(ctx context.Context, opts ListOptions) ([]*Entry, int, error) {
	ctx, span := p.startSpan(ctx, "cache.durable.List",
		trace.WithAttributes(otel.AttrPage.Int(opts.Page), otel.AttrPageSize.Int(opts.PerPage)))
	defer span.End()

	var total int
	if err := p.pool.QueryRow(ctx, countRecordsSQL).Scan(&total); err != nil {
		otel.RecordError(span, err)
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	query := listRecordsByStorageSQL
	if opts.Sort == SortUpdated {
		query = listRecordsByUpdatedSQL
	}

	rows, err := p.pool.Query(ctx, query, opts.PerPage, opts.offset())
	if err != nil {
		otel.RecordError(span, err)
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0, opts.PerPage)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			otel.RecordError(span, err)
			return nil, 0, fmt.Errorf("failed to scan record: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		otel.RecordError(span, err)
		return nil, 0, fmt.Errorf("failed to iterate records: %w", err)
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(entries)))
	return entries, total, nil
}

// Ping implements Durable
func (p *PostgresTier) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e               Entry
		kind            string
		slug            *string
		lastUpdated     *string
		lastUpdatedTime *time.Time
		value           []byte
	)
	if err := row.Scan(&e.Key, &kind, &slug, &lastUpdated, &lastUpdatedTime, &value); err != nil {
		return nil, err
	}

	e.Kind = Kind(kind)
	if slug != nil {
		e.Slug = *slug
	}
	if lastUpdated != nil {
		e.LastUpdated = *lastUpdated
	}
	if lastUpdatedTime != nil {
		e.LastUpdatedTime = lastUpdatedTime.UTC()
	}
	e.Value = value
	return &e, nil
}
