package coordinator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/stacklok/plugin-mirror/internal/config"
	"github.com/stacklok/plugin-mirror/internal/status"
	pkgsync "github.com/stacklok/plugin-mirror/internal/sync"
)

// minInterval keeps a misconfigured jitter from producing a busy loop
const minInterval = time.Second

// Trigger reasons recorded on scheduled runs
const (
	ReasonStartup  = "startup"
	ReasonSchedule = "schedule"
)

// Coordinator manages background synchronization scheduling
type Coordinator interface {
	// Start begins the background sync loop.
	// Blocks until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the loop and waits for it to exit
	Stop() error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	runner    pkgsync.Runner
	interval  time.Duration
	jitter    time.Duration
	onStartup bool

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithInterval sets the base interval between runs
func WithInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithJitter sets the maximum random offset applied to each interval
func WithJitter(jitter time.Duration) Option {
	return func(c *defaultCoordinator) {
		if jitter >= 0 {
			c.jitter = jitter
		}
	}
}

// WithRunOnStartup controls whether Start triggers a run immediately
func WithRunOnStartup(enabled bool) Option {
	return func(c *defaultCoordinator) {
		c.onStartup = enabled
	}
}

// New creates a new coordinator triggering runner
func New(runner pkgsync.Runner, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		runner:    runner,
		interval:  config.DefaultSyncInterval,
		onStartup: true,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nextInterval returns the base interval with a random offset in [-jitter, +jitter]
func (c *defaultCoordinator) nextInterval() time.Duration {
	interval := c.interval
	if c.jitter > 0 {
		//nolint:gosec // G404: Non-cryptographic randomness is sufficient for scheduling jitter
		interval += time.Duration(rand.Int64N(int64(2*c.jitter))) - c.jitter
	}
	return max(interval, minInterval)
}

// Start begins background sync coordination
func (c *defaultCoordinator) Start(ctx context.Context) error {
	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		close(c.done)
		slog.Info("Background sync coordinator shut down")
	}()

	interval := c.nextInterval()
	slog.Info("Starting background sync coordinator",
		"base_interval", c.interval,
		"jitter", c.jitter,
		"next_interval", interval,
		"run_on_startup", c.onStartup)

	if c.onStartup {
		c.runOnce(coordCtx, ReasonStartup)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runOnce(coordCtx, ReasonSchedule)
			ticker.Reset(c.nextInterval())
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		<-c.done
	}
	return nil
}

func (c *defaultCoordinator) runOnce(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}

	summary := c.runner.Trigger(ctx, pkgsync.TriggerOptions{Reason: reason})
	switch summary.Status {
	case status.RunStatusAlreadyInProgress:
		slog.Info("Skipping scheduled sync, a run is already in progress", "reason", reason)
	case status.RunStatusFailed:
		slog.Warn("Scheduled sync failed", "reason", reason, "run_id", summary.RunID, "error", summary.Error)
	}
}
