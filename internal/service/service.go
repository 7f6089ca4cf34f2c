// Package service provides the read side of the mirror: single plugin
// lookups and paged listings served from the record store.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/plugin-mirror/internal/cache"
	"github.com/stacklok/plugin-mirror/internal/registry"
)

// ServiceTracerName is the name used for the service tracer
const ServiceTracerName = "github.com/stacklok/plugin-mirror/service"

var (
	// ErrPluginNotFound is returned when neither the store nor the feed knows a slug
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrUnavailable is returned when a listing cannot be answered because
	// the durable tier is down and no cached response exists
	ErrUnavailable = errors.New("listing temporarily unavailable")
)

// ValidationError reports a bad request argument
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go Service

// Service defines the query operations of the mirror
type Service interface {
	// CheckReadiness reports whether the durable tier is reachable
	CheckReadiness(ctx context.Context) error

	// PluginInformation returns one plugin, fetching and storing it on a miss
	PluginInformation(ctx context.Context, slug string) (*registry.Plugin, error)

	// QueryPlugins returns a page of stored plugins
	QueryPlugins(ctx context.Context, opts ...Option[QueryOptions]) (*registry.PluginList, error)
}

// Store is the part of the record store the service reads from
type Store interface {
	Get(ctx context.Context, key string) (*cache.Entry, bool)
	Set(ctx context.Context, e *cache.Entry) (cache.Change, error)
	ListRecords(ctx context.Context, opts cache.ListOptions) ([]*cache.Entry, int, error)
	Ping(ctx context.Context) error
}
