package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/plugin-mirror/internal/otel"
)

// bucketOrder maps an insertion sequence to a record key
var bucketOrder = []byte("record_order")

// BoltTier is a durable tier kept in a local bbolt file, for deployments
// without PostgreSQL. Storage order is insertion order, as with the
// created_at column of the PostgreSQL tier.
type BoltTier struct {
	db     *bbolt.DB
	tracer trace.Tracer
}

var _ Durable = (*BoltTier)(nil)

// BoltOption configures a BoltTier
type BoltOption func(*BoltTier)

// WithBoltTracer sets the tracer for durable tier spans. Nil disables tracing.
func WithBoltTracer(tracer trace.Tracer) BoltOption {
	return func(b *BoltTier) {
		b.tracer = tracer
	}
}

// OpenBoltTier opens or creates the bbolt file at path
func OpenBoltTier(path string, opts ...BoltOption) (*BoltTier, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: snapshotOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		entries, err := tx.CreateBucketIfNotExists(bucketEntries)
		if err != nil {
			return err
		}
		if tx.Bucket(bucketOrder) != nil {
			return nil
		}
		order, err := tx.CreateBucket(bucketOrder)
		if err != nil {
			return err
		}
		// Files written before the order index existed are indexed in key order.
		return entries.ForEach(func(k, v []byte) error {
			e, err := decodeEntry(k, v)
			if err != nil || e.Kind != KindRecord {
				return err
			}
			return appendOrder(order, k)
		})
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	b := &BoltTier{db: db}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Close closes the underlying file
func (b *BoltTier) Close() error {
	return b.db.Close()
}

func (b *BoltTier) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, b.tracer, name,
		trace.WithAttributes(otel.AttrCacheTier.String("durable")))
}

// Get implements Durable
func (b *BoltTier) Get(ctx context.Context, key string) (*Entry, error) {
	_, span := b.startSpan(ctx, "cache.durable.Get")
	defer span.End()

	var e *Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEntries).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		var err error
		e, err = decodeEntry([]byte(key), data)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		span.SetAttributes(otel.AttrCacheHit.Bool(false))
		return nil, ErrNotFound
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(otel.AttrCacheHit.Bool(true))
	return e, nil
}

// Upsert implements Durable
func (b *BoltTier) Upsert(ctx context.Context, e *Entry) (Change, error) {
	_, span := b.startSpan(ctx, "cache.durable.Upsert")
	defer span.End()

	change := ChangeNone
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEntries)
		key := []byte(e.Key)

		if existing := bucket.Get(key); existing != nil {
			prev, err := decodeEntry(key, existing)
			if err != nil {
				return err
			}
			if bytes.Equal(prev.Value, e.Value) {
				return nil
			}
			change = ChangeUpdated
		} else {
			change = ChangeInserted
		}

		data, err := encodeEntry(e)
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", e.Key, err)
		}
		if err := bucket.Put(key, data); err != nil {
			return err
		}
		if change == ChangeInserted && e.Kind == KindRecord {
			return appendOrder(tx.Bucket(bucketOrder), key)
		}
		return nil
	})
	if err != nil {
		otel.RecordError(span, err)
		return ChangeNone, fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return change, nil
}

// Latest implements Durable
func (b *BoltTier) Latest(ctx context.Context) (*Entry, error) {
	_, span := b.startSpan(ctx, "cache.durable.Latest")
	defer span.End()

	records, err := b.records()
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	var latest *Entry
	for _, e := range records {
		if latest == nil || e.LastUpdatedTime.After(latest.LastUpdatedTime) {
			latest = e
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

// List implements Durable
func (b *BoltTier) List(ctx context.Context, opts ListOptions) ([]*Entry, int, error) {
	_, span := b.startSpan(ctx, "cache.durable.List")
	defer span.End()

	records, err := b.records()
	if err != nil {
		otel.RecordError(span, err)
		return nil, 0, err
	}

	if opts.Sort == SortUpdated {
		sort.SliceStable(records, func(i, j int) bool {
			ti, tj := records[i].LastUpdatedTime, records[j].LastUpdatedTime
			switch {
			case ti.IsZero() != tj.IsZero():
				return tj.IsZero()
			case !ti.Equal(tj):
				return ti.After(tj)
			default:
				return records[i].Key < records[j].Key
			}
		})
	}

	total := len(records)
	start := min(opts.offset(), total)
	end := min(start+opts.PerPage, total)

	span.SetAttributes(otel.AttrResultCount.Int(end - start))
	return records[start:end], total, nil
}

// Ping implements Durable
func (b *BoltTier) Ping(_ context.Context) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketEntries) == nil || tx.Bucket(bucketOrder) == nil {
			return fmt.Errorf("entries bucket missing")
		}
		return nil
	})
}

// appendOrder records key under the bucket's next sequence number
func appendOrder(order *bbolt.Bucket, key []byte) error {
	seq, err := order.NextSequence()
	if err != nil {
		return err
	}
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], seq)
	return order.Put(id[:], key)
}

// records returns every record entry in insertion order
func (b *BoltTier) records() ([]*Entry, error) {
	var records []*Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		return tx.Bucket(bucketOrder).ForEach(func(_, key []byte) error {
			data := entries.Get(key)
			if data == nil {
				return nil
			}
			e, err := decodeEntry(key, data)
			if err != nil {
				return err
			}
			records = append(records, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return records, nil
}
