// Package storage provides factory functions for creating storage-dependent components.
// It implements the Abstract Factory pattern so the record store and the
// durable tier it writes through are created with a compatible backend.
package storage

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/plugin-mirror/internal/cache"
	"github.com/stacklok/plugin-mirror/internal/config"
	"github.com/stacklok/plugin-mirror/internal/status"
	"github.com/stacklok/plugin-mirror/internal/telemetry"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates storage-dependent components as a family.
//
// The factory encapsulates the creation of:
// - Store: the two-tier record store, wired to this factory's durable tier
// - MarkerStore: the side marker holding the last completed cursor
//
// It also manages the lifecycle of storage resources (e.g., database connections).
type Factory interface {
	// CreateStore creates the record store. An unreachable durable tier is
	// not an error: the store starts degraded.
	CreateStore(ctx context.Context) (*cache.Store, error)

	// CreateMarkerStore creates the side marker store
	CreateMarkerStore(ctx context.Context) (status.MarkerStore, error)

	// Cleanup releases any resources held by this factory.
	// Should be called when the application shuts down.
	Cleanup()
}

// Option configures the components a factory creates
type Option func(*options)

type options struct {
	tracer     trace.Tracer
	metrics    *telemetry.CacheMetrics
	migrations bool
}

// WithTracer sets the tracer for store and durable tier spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithCacheMetrics sets the store metrics
func WithCacheMetrics(metrics *telemetry.CacheMetrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithMigrations applies pending schema migrations when the database factory is created
func WithMigrations(enabled bool) Option {
	return func(o *options) {
		o.migrations = enabled
	}
}

func (o *options) storeOptions(durable cache.Durable) []cache.Option {
	return []cache.Option{
		cache.WithDurable(durable),
		cache.WithMetrics(o.metrics),
		cache.WithTracer(o.tracer),
	}
}

// NewStorageFactory creates a storage factory based on the configuration.
// Returns a DatabaseFactory when a database is configured and a FileFactory otherwise.
func NewStorageFactory(ctx context.Context, cfg *config.Config, opts ...Option) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.UsesDatabase() {
		return NewDatabaseFactory(ctx, cfg, opts...)
	}
	return NewFileFactory(cfg, opts...)
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
