package app

import (
	"log/slog"

	"github.com/stacklok/plugin-mirror/internal/app/storage"
	"github.com/stacklok/plugin-mirror/internal/cache"
	"github.com/stacklok/plugin-mirror/internal/notify"
	"github.com/stacklok/plugin-mirror/internal/service"
	pkgsync "github.com/stacklok/plugin-mirror/internal/sync"
	"github.com/stacklok/plugin-mirror/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncCoordinator schedules background synchronization
	SyncCoordinator coordinator.Coordinator

	// Runner executes synchronization runs
	Runner pkgsync.Runner

	// PluginService answers the read endpoints
	PluginService service.Service

	// Store is the record store, nil when injected components bypass it
	Store *cache.Store

	// Notifier fans change events out to the sinks
	Notifier *notify.Notifier

	// StorageFactory owns the durable tier resources
	StorageFactory storage.Factory
}

// close releases the notifier and the storage resources. Safe on partially
// built components.
func (c *AppComponents) close() {
	if c.Notifier != nil {
		if err := c.Notifier.Close(); err != nil {
			slog.Warn("Failed to close notification sinks", "error", err)
		}
		c.Notifier = nil
	}
	if c.StorageFactory != nil {
		c.StorageFactory.Cleanup()
		c.StorageFactory = nil
	}
}
