package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/plugin-mirror/database"
	"github.com/stacklok/plugin-mirror/internal/cache"
	"github.com/stacklok/plugin-mirror/internal/config"
	"github.com/stacklok/plugin-mirror/internal/db"
	"github.com/stacklok/plugin-mirror/internal/status"
)

// DatabaseFactory creates components whose durable tier is PostgreSQL.
type DatabaseFactory struct {
	config *config.Config
	pool   *pgxpool.Pool
	opts   *options
}

var _ Factory = (*DatabaseFactory)(nil)

// NewDatabaseFactory creates a new database-backed storage factory.
// It creates the connection pool without connecting. A failed migration is
// logged and the store starts degraded.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...Option) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage")
	}

	slog.Info("Creating database-backed storage factory")

	o := newOptions(opts)
	if o.migrations {
		if err := migrate(cfg.Database); err != nil {
			slog.Warn("Failed to apply database migrations", "error", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	return &DatabaseFactory{
		config: cfg,
		pool:   pool,
		opts:   o,
	}, nil
}

// CreateStore creates a record store over the PostgreSQL tier.
func (d *DatabaseFactory) CreateStore(ctx context.Context) (*cache.Store, error) {
	slog.Debug("Creating database-backed record store")

	tier, err := cache.NewPostgresTier(d.pool, cache.WithPostgresTracer(d.opts.tracer))
	if err != nil {
		return nil, err
	}
	return cache.NewStore(ctx, d.opts.storeOptions(tier)...), nil
}

// CreateMarkerStore creates the file marker in the data directory.
func (d *DatabaseFactory) CreateMarkerStore(_ context.Context) (status.MarkerStore, error) {
	return status.NewFileMarker(d.config.MarkerPath()), nil
}

// Cleanup closes the database connection pool.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

func migrate(cfg *config.DatabaseConfig) error {
	connString, err := cfg.GetConnectionString()
	if err != nil {
		return err
	}
	return database.MigrateUp(connString)
}
