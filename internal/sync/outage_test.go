package sync_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/plugin-mirror/internal/cache"
	"github.com/stacklok/plugin-mirror/internal/cursor"
	"github.com/stacklok/plugin-mirror/internal/notify"
	"github.com/stacklok/plugin-mirror/internal/status"
	pkgsync "github.com/stacklok/plugin-mirror/internal/sync"
)

var errRefused = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

// switchableDurable is an in-memory durable tier that can be taken offline.
type switchableDurable struct {
	mu      sync.Mutex
	down    bool
	entries map[string]*cache.Entry
}

func newSwitchableDurable() *switchableDurable {
	return &switchableDurable{entries: map[string]*cache.Entry{}}
}

func (d *switchableDurable) setDown(down bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.down = down
}

func (d *switchableDurable) Get(_ context.Context, key string) (*cache.Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return nil, errRefused
	}
	e, ok := d.entries[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (d *switchableDurable) Upsert(_ context.Context, e *cache.Entry) (cache.Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return cache.ChangeNone, errRefused
	}
	prev, ok := d.entries[e.Key]
	c := *e
	d.entries[e.Key] = &c
	switch {
	case !ok:
		return cache.ChangeInserted, nil
	case bytes.Equal(prev.Value, e.Value):
		return cache.ChangeNone, nil
	default:
		return cache.ChangeUpdated, nil
	}
}

func (d *switchableDurable) Latest(_ context.Context) (*cache.Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return nil, errRefused
	}
	var best *cache.Entry
	for _, e := range d.entries {
		if e.Kind == cache.KindRecord && (best == nil || e.LastUpdatedTime.After(best.LastUpdatedTime)) {
			best = e
		}
	}
	if best == nil {
		return nil, cache.ErrNotFound
	}
	c := *best
	return &c, nil
}

func (d *switchableDurable) List(_ context.Context, _ cache.ListOptions) ([]*cache.Entry, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return nil, 0, errRefused
	}
	return nil, 0, nil
}

func (d *switchableDurable) Ping(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return errRefused
	}
	return nil
}

func (d *switchableDurable) has(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[key]
	return ok
}

func TestEngine_DurableOutageDoesNotRepeatNotifications(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := newSwitchableDurable()

	f := newFixture(t)
	f.store = cache.NewStore(ctx, cache.WithDurable(durable), cache.WithReconnectBackoff(time.Hour, time.Hour))
	engine := f.engine(t)

	gomock.InOrder(
		f.sink.EXPECT().Publish(gomock.Any(), notify.Event{Slug: "one", LastUpdated: cursor.Encode(t1)}).Return(nil),
		f.sink.EXPECT().Publish(gomock.Any(), notify.Event{Slug: "three", LastUpdated: cursor.Encode(t3)}).Return(nil),
	)

	// Durable tier up.
	f.feed.EXPECT().FetchPage(gomock.Any(), pageReq(1)).Return(listing(1, plugin("one", t1)), nil)
	summary := engine.Trigger(ctx, pkgsync.TriggerOptions{})
	require.Equal(t, status.RunStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.RecordsUpdated)

	// Durable tier down: the newer record lands in memory only.
	durable.setDown(true)
	f.feed.EXPECT().FetchPage(gomock.Any(), pageReq(1)).Return(listing(1, plugin("three", t3), plugin("one", t1)), nil)
	summary = engine.Trigger(ctx, pkgsync.TriggerOptions{})
	require.Equal(t, status.RunStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.RecordsUpdated)
	assert.True(t, f.store.Degraded())
	assert.False(t, durable.has(cache.KeyForRecord("three")))

	// Back up: the memory-only write reaches the durable tier and the cursor moves past it.
	durable.setDown(false)
	require.NoError(t, f.store.Ping(ctx))
	assert.True(t, durable.has(cache.KeyForRecord("three")))

	f.feed.EXPECT().FetchPage(gomock.Any(), pageReq(1)).Return(listing(1, plugin("three", t3), plugin("one", t1)), nil)
	summary = engine.Trigger(ctx, pkgsync.TriggerOptions{})
	require.Equal(t, status.RunStatusCompleted, summary.Status)
	assert.Equal(t, cursor.Encode(t3), summary.StartCursor)
	assert.Equal(t, status.StopCursorReached, summary.StopReason)
	assert.Zero(t, summary.RecordsUpdated)

	// A forced re-walk writes the same values and announces nothing.
	f.feed.EXPECT().FetchPage(gomock.Any(), pageReq(1)).Return(listing(1, plugin("three", t3), plugin("one", t1)), nil)
	summary = engine.Trigger(ctx, pkgsync.TriggerOptions{Force: true})
	require.Equal(t, status.RunStatusCompleted, summary.Status)
	assert.Zero(t, summary.RecordsUpdated)
	assert.Zero(t, summary.NotificationsSent)
}
