package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/plugin-mirror/internal/config"
	"github.com/stacklok/plugin-mirror/internal/status"
	pkgsync "github.com/stacklok/plugin-mirror/internal/sync"
	syncmocks "github.com/stacklok/plugin-mirror/internal/sync/mocks"
)

func completed() *status.RunSummary {
	s := &status.RunSummary{RunID: "run"}
	s.SetStatus(status.RunStatusCompleted)
	return s
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	c := New(syncmocks.NewMockRunner(ctrl)).(*defaultCoordinator)

	assert.Equal(t, config.DefaultSyncInterval, c.interval)
	assert.Zero(t, c.jitter)
	assert.True(t, c.onStartup)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	disabled := false
	cfg := &config.SyncConfig{Interval: "30m", Jitter: "5m", OnStartup: &disabled}

	c := New(syncmocks.NewMockRunner(ctrl), FromConfig(cfg)...).(*defaultCoordinator)
	assert.Equal(t, 30*time.Minute, c.interval)
	assert.Equal(t, 5*time.Minute, c.jitter)
	assert.False(t, c.onStartup)

	assert.Nil(t, FromConfig(nil))
}

func TestNextInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interval time.Duration
		jitter   time.Duration
		min, max time.Duration
	}{
		{name: "no jitter", interval: time.Hour, min: time.Hour, max: time.Hour},
		{name: "with jitter", interval: time.Hour, jitter: 5 * time.Minute, min: 55 * time.Minute, max: 65 * time.Minute},
		{name: "clamped", interval: 10 * time.Millisecond, min: minInterval, max: minInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := &defaultCoordinator{interval: tt.interval, jitter: tt.jitter}
			for range 100 {
				got := c.nextInterval()
				assert.GreaterOrEqual(t, got, tt.min)
				assert.LessOrEqual(t, got, tt.max)
			}
		})
	}
}

func TestCoordinator_Stop_BeforeStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	c := New(syncmocks.NewMockRunner(ctrl))

	assert.NoError(t, c.Stop())
}

func TestCoordinator_RunsOnStartup(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	runner := syncmocks.NewMockRunner(ctrl)
	triggered := make(chan struct{})

	runner.EXPECT().
		Trigger(gomock.Any(), pkgsync.TriggerOptions{Reason: ReasonStartup}).
		DoAndReturn(func(context.Context, pkgsync.TriggerOptions) *status.RunSummary {
			close(triggered)
			return completed()
		})

	c := New(runner, WithInterval(time.Hour))
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(context.Background()) }()

	select {
	case <-triggered:
	case <-time.After(5 * time.Second):
		t.Fatal("startup run was not triggered")
	}

	require.NoError(t, c.Stop())
	require.NoError(t, <-errCh)
}

func TestCoordinator_SkipsStartupRun(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	runner := syncmocks.NewMockRunner(ctrl)
	// No Trigger expectation: neither startup nor the hourly tick should fire

	c := New(runner, WithInterval(time.Hour), WithRunOnStartup(false))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, c.Start(ctx))
}

func TestCoordinator_TicksAndToleratesRejections(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	runner := syncmocks.NewMockRunner(ctrl)
	ticks := make(chan struct{}, 10)
	var calls atomic.Int32

	runner.EXPECT().
		Trigger(gomock.Any(), pkgsync.TriggerOptions{Reason: ReasonSchedule}).
		DoAndReturn(func(context.Context, pkgsync.TriggerOptions) *status.RunSummary {
			ticks <- struct{}{}
			if calls.Add(1) == 1 {
				return status.AlreadyInProgress()
			}
			return completed()
		}).
		MinTimes(2)

	c := &defaultCoordinator{runner: runner, interval: minInterval, done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(ctx) }()

	for range 2 {
		select {
		case <-ticks:
		case <-time.After(10 * time.Second):
			t.Fatal("scheduled run was not triggered")
		}
	}

	cancel()
	require.NoError(t, <-errCh)
}
