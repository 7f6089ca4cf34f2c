package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/stacklok/plugin-mirror/internal/cache"
	"github.com/stacklok/plugin-mirror/internal/config"
	"github.com/stacklok/plugin-mirror/internal/status"
)

// FileFactory creates components whose durable tier is a bbolt file in the
// data directory.
type FileFactory struct {
	config *config.Config
	opts   *options

	mu   sync.Mutex
	tier *cache.BoltTier
}

var _ Factory = (*FileFactory)(nil)

// NewFileFactory creates a new file-based storage factory, ensuring the
// data directory exists.
func NewFileFactory(cfg *config.Config, opts ...Option) (*FileFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	slog.Info("Creating file-based storage factory", "data_dir", cfg.DataDir)

	return &FileFactory{
		config: cfg,
		opts:   newOptions(opts),
	}, nil
}

// CreateStore opens the bbolt file and creates a record store over it.
func (f *FileFactory) CreateStore(ctx context.Context) (*cache.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tier == nil {
		tier, err := cache.OpenBoltTier(f.config.StorePath(), cache.WithBoltTracer(f.opts.tracer))
		if err != nil {
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
		f.tier = tier
	}

	slog.Debug("Creating file-based record store", "path", f.config.StorePath())
	return cache.NewStore(ctx, f.opts.storeOptions(f.tier)...), nil
}

// CreateMarkerStore creates the file marker in the data directory.
func (f *FileFactory) CreateMarkerStore(_ context.Context) (status.MarkerStore, error) {
	return status.NewFileMarker(f.config.MarkerPath()), nil
}

// Cleanup closes the bbolt file.
func (f *FileFactory) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tier != nil {
		if err := f.tier.Close(); err != nil {
			slog.Warn("Failed to close local store", "error", err)
		}
		f.tier = nil
	}
}
