package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/plugin-mirror/internal/registry"
)

var errConnRefused = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

// fakeDurable is an in-memory Durable whose reachability can be toggled.
type fakeDurable struct {
	mu      sync.Mutex
	down    bool
	entries map[string]*Entry
	order   []string
	pings   int
	upserts int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{entries: map[string]*Entry{}}
}

func (f *fakeDurable) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeDurable) Get(_ context.Context, key string) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errConnRefused
	}
	e, ok := f.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return e.clone(), nil
}

func (f *fakeDurable) Upsert(_ context.Context, e *Entry) (Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return ChangeNone, errConnRefused
	}
	f.upserts++
	prev, ok := f.entries[e.Key]
	f.entries[e.Key] = e.clone()
	switch {
	case !ok:
		f.order = append(f.order, e.Key)
		return ChangeInserted, nil
	case bytes.Equal(prev.Value, e.Value):
		return ChangeNone, nil
	default:
		return ChangeUpdated, nil
	}
}

func (f *fakeDurable) Latest(_ context.Context) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errConnRefused
	}
	var best *Entry
	for _, e := range f.entries {
		if e.Kind == KindRecord && (best == nil || e.LastUpdatedTime.After(best.LastUpdatedTime)) {
			best = e
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best.clone(), nil
}

func (f *fakeDurable) List(_ context.Context, opts ListOptions) ([]*Entry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, 0, errConnRefused
	}
	var records []*Entry
	for _, key := range f.order {
		if e := f.entries[key]; e.Kind == KindRecord {
			records = append(records, e.clone())
		}
	}
	if opts.Sort == SortUpdated {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].LastUpdatedTime.After(records[j].LastUpdatedTime)
		})
	}
	start := min(opts.offset(), len(records))
	end := min(start+opts.PerPage, len(records))
	return records[start:end], len(records), nil
}

func (f *fakeDurable) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	if f.down {
		return errConnRefused
	}
	return nil
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func recordEntry(t *testing.T, slug string, ts time.Time, opts ...registry.PluginOption) *Entry {
	t.Helper()
	opts = append([]registry.PluginOption{registry.WithLastUpdatedTime(ts)}, opts...)
	e, err := NewRecordEntry(registry.NewTestPlugin(slug, opts...))
	require.NoError(t, err)
	return e
}

func newTestStore(t *testing.T, durable *fakeDurable) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)}
	s := NewStore(context.Background(),
		WithDurable(durable),
		WithReconnectBackoff(time.Second, time.Minute),
		withClock(clock.Now),
	)
	return s, clock
}

func TestStore_SetGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := newFakeDurable()
	store, _ := newTestStore(t, durable)

	e := recordEntry(t, "akismet", time.Date(2024, 3, 5, 16, 15, 0, 0, time.UTC))

	change, err := store.Set(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, ChangeInserted, change)

	got, ok := store.Get(ctx, e.Key)
	require.True(t, ok)
	assert.Equal(t, e.Value, got.Value)
	assert.Equal(t, "akismet", got.Slug)

	_, ok = store.Get(ctx, KeyForRecord("missing"))
	assert.False(t, ok)
}

func TestStore_IdempotentUpsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t, newFakeDurable())
	ts := time.Date(2024, 3, 5, 16, 15, 0, 0, time.UTC)

	first, err := store.Set(ctx, recordEntry(t, "akismet", ts))
	require.NoError(t, err)
	second, err := store.Set(ctx, recordEntry(t, "akismet", ts))
	require.NoError(t, err)
	third, err := store.Set(ctx, recordEntry(t, "akismet", ts, registry.WithVersion("2.0.0")))
	require.NoError(t, err)

	assert.Equal(t, ChangeInserted, first)
	assert.Equal(t, ChangeNone, second)
	assert.Equal(t, ChangeUpdated, third)
	assert.True(t, first.Changed())
	assert.False(t, second.Changed())
}

func TestStore_RoundTripWithDurableDown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := newFakeDurable()
	store, _ := newTestStore(t, durable)

	e := recordEntry(t, "hello-dolly", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	_, err := store.Set(ctx, e)
	require.NoError(t, err)

	durable.setDown(true)

	got, ok := store.Get(ctx, e.Key)
	require.True(t, ok)
	assert.Equal(t, e.Value, got.Value)
}

func TestStore_SetWhileDurableDown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := newFakeDurable()
	store, clock := newTestStore(t, durable)
	durable.setDown(true)

	e := recordEntry(t, "jetpack", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	change, err := store.Set(ctx, e)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDurableUnavailable)
	assert.Equal(t, ChangeInserted, change, "change is computed against the fast tier")
	assert.True(t, store.Degraded())

	got, ok := store.Get(ctx, e.Key)
	require.True(t, ok)
	assert.Equal(t, e.Value, got.Value)

	// Within the backoff window the durable tier is not probed.
	pings := durable.pings
	_, err = store.Set(ctx, e)
	assert.ErrorIs(t, err, ErrDurableUnavailable)
	assert.Equal(t, pings, durable.pings)

	// After the window a lazy probe reconnects and the memory-only write is
	// copied over before the new one; it is not reported a second time.
	durable.setDown(false)
	clock.Advance(time.Hour)

	change, err = store.Set(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, ChangeNone, change)
	assert.False(t, store.Degraded())
	assert.Zero(t, store.Pending())

	stored, err := durable.Get(ctx, e.Key)
	require.NoError(t, err)
	assert.Equal(t, e.Value, stored.Value)
}

func TestStore_RecoveryCopiesMemoryOnlyWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := newFakeDurable()
	store, clock := newTestStore(t, durable)

	old := recordEntry(t, "akismet", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	_, err := store.Set(ctx, old)
	require.NoError(t, err)

	durable.setDown(true)
	fresh := recordEntry(t, "jetpack", time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC))
	_, err = store.Set(ctx, fresh)
	require.ErrorIs(t, err, ErrDurableUnavailable)
	assert.Equal(t, 1, store.Pending())

	durable.setDown(false)
	clock.Advance(time.Hour)

	// The newest record comes from the durable tier, which now has the memory-only write.
	latest, err := store.LatestRecord(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "jetpack", latest.Slug)
	assert.Zero(t, store.Pending())

	entries, total, err := store.ListRecords(ctx, ListOptions{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, entries, 2)
}

func TestStore_PingCopiesMemoryOnlyWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := newFakeDurable()
	store, _ := newTestStore(t, durable)

	durable.setDown(true)
	for _, slug := range []string{"akismet", "jetpack"} {
		_, err := store.Set(ctx, recordEntry(t, slug, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
		require.ErrorIs(t, err, ErrDurableUnavailable)
	}
	assert.Equal(t, 2, store.Pending())

	// Still down: Ping fails and nothing is flushed.
	require.ErrorIs(t, store.Ping(ctx), ErrDurableUnavailable)
	assert.Equal(t, 2, store.Pending())

	durable.setDown(false)
	require.NoError(t, store.Ping(ctx))
	assert.Zero(t, store.Pending())
	assert.Equal(t, 2, durable.upserts)
}

func TestStore_StartsDegraded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := newFakeDurable()
	durable.setDown(true)
	store, clock := newTestStore(t, durable)

	assert.True(t, store.Degraded())

	_, _, err := store.ListRecords(ctx, ListOptions{Page: 1, PerPage: 10})
	assert.ErrorIs(t, err, ErrDurableUnavailable)

	durable.setDown(false)
	clock.Advance(time.Hour)

	_, _, err = store.ListRecords(ctx, ListOptions{Page: 1, PerPage: 10})
	assert.NoError(t, err)
	assert.False(t, store.Degraded())
}

func TestStore_ReadRepair(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := newFakeDurable()
	e := recordEntry(t, "classic-editor", time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC))
	_, err := durable.Upsert(ctx, e)
	require.NoError(t, err)

	store, _ := newTestStore(t, durable)

	got, ok := store.Get(ctx, e.Key)
	require.True(t, ok)
	assert.Equal(t, e.Value, got.Value)

	// The fast tier now holds the entry, so it survives a durable outage.
	durable.setDown(true)
	got, ok = store.Get(ctx, e.Key)
	require.True(t, ok)
	assert.Equal(t, "classic-editor", got.Slug)
}

func TestStore_DurableWinsOverStaleFast(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := newFakeDurable()
	ts := time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)
	_, err := durable.Upsert(ctx, recordEntry(t, "woocommerce", ts))
	require.NoError(t, err)

	// A fresh process has an empty fast tier; the durable tier still reports no change.
	store, _ := newTestStore(t, durable)
	change, err := store.Set(ctx, recordEntry(t, "woocommerce", ts))
	require.NoError(t, err)
	assert.Equal(t, ChangeNone, change)
}

func TestStore_LatestRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := newFakeDurable()
	store, _ := newTestStore(t, durable)

	latest, err := store.LatestRecord(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	older := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	for _, e := range []*Entry{
		recordEntry(t, "older", older),
		recordEntry(t, "newer", newer),
		NewResponseEntry(KeyFor("/plugins/info/1.2/", nil), []byte(`{"plugins":[]}`)),
	} {
		_, err := store.Set(ctx, e)
		require.NoError(t, err)
	}

	latest, err = store.LatestRecord(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "newer", latest.Slug)

	// Degraded stores answer from memory.
	durable.setDown(true)
	latest, err = store.LatestRecord(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "newer", latest.Slug)
	assert.True(t, newer.Equal(latest.LastUpdatedTime))
}

func TestStore_ListRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t, newFakeDurable())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Insert oldest-last so storage order differs from updated order.
	for i, slug := range []string{"b", "c", "a"} {
		_, err := store.Set(ctx, recordEntry(t, slug, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	entries, total, err := store.ListRecords(ctx, ListOptions{Page: 1, PerPage: 2, Sort: SortUpdated})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Slug)
	assert.Equal(t, "c", entries[1].Slug)

	entries, _, err = store.ListRecords(ctx, ListOptions{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Slug)
}

func TestStore_MemoryOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(ctx)

	e := recordEntry(t, "memory", time.Now())
	change, err := store.Set(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, ChangeInserted, change)

	_, ok := store.Get(ctx, e.Key)
	assert.True(t, ok)
	assert.False(t, store.Degraded())
	assert.NoError(t, store.Ping(ctx))

	_, _, err = store.ListRecords(ctx, ListOptions{Page: 1, PerPage: 5})
	assert.ErrorIs(t, err, ErrDurableUnavailable)
}

func TestStore_SetRequiresKey(t *testing.T) {
	t.Parallel()

	store := NewStore(context.Background())
	_, err := store.Set(context.Background(), &Entry{})
	assert.Error(t, err)
	_, err = store.Set(context.Background(), nil)
	assert.Error(t, err)
}

func TestStore_ConcurrentReadsDuringWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t, newFakeDurable())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	v1 := recordEntry(t, "busy", ts, registry.WithVersion("1.0.0"))
	v2 := recordEntry(t, "busy", ts, registry.WithVersion("2.0.0"))
	_, err := store.Set(ctx, v1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.Set(ctx, v2)
		}()
		go func() {
			defer wg.Done()
			got, ok := store.Get(ctx, v1.Key)
			assert.True(t, ok)
			assert.True(t, bytes.Equal(got.Value, v1.Value) || bytes.Equal(got.Value, v2.Value))
		}()
	}
	wg.Wait()
}

func TestIsConnectivityError(t *testing.T) {
	t.Parallel()

	assert.False(t, isConnectivityError(nil))
	assert.False(t, isConnectivityError(errors.New("syntax error")))
	assert.True(t, isConnectivityError(errConnRefused))
	assert.True(t, isConnectivityError(fmt.Errorf("wrapped: %w", errConnRefused)))
	assert.True(t, isConnectivityError(context.DeadlineExceeded))
}

func TestChange_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", ChangeNone.String())
	assert.Equal(t, "inserted", ChangeInserted.String())
	assert.Equal(t, "updated", ChangeUpdated.String())
	assert.Equal(t, "change(9)", Change(9).String())
}
