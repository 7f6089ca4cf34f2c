// Package app provides application lifecycle management for the plugin mirror.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/plugin-mirror/internal/config"
)

// MirrorApp encapsulates all components needed to run the mirror.
// It provides lifecycle management and graceful shutdown capabilities
type MirrorApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the application components (HTTP server and background sync)
// This method blocks until the HTTP server stops or encounters an error
func (app *MirrorApp) Start() error {
	// Start sync coordinator in background
	go func() {
		if err := app.components.SyncCoordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	// Start HTTP server (blocks until stopped)
	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// Scheduling stops first, then the HTTP server drains. The fast tier is
// snapshotted before the sinks and the durable tier are released.
func (app *MirrorApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	// Stop sync coordinator first
	if err := app.components.SyncCoordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	// Cancel the application context
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	// Graceful HTTP server shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := app.httpServer.Shutdown(shutdownCtx)

	app.saveSnapshot()
	app.components.close()

	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}

	slog.Info("Server shutdown complete")
	return nil
}

func (app *MirrorApp) saveSnapshot() {
	if app.components.Store == nil || app.config.Cache == nil || app.config.Cache.SnapshotFile == "" {
		return
	}
	path := app.config.Cache.SnapshotFile
	saved, err := app.components.Store.SaveSnapshot(path)
	if err != nil {
		slog.Error("Failed to save cache snapshot", "path", path, "error", err)
		return
	}
	slog.Info("Saved cache snapshot", "path", path, "entries", saved)
}

// GetConfig returns the application configuration
func (app *MirrorApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *MirrorApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// GetComponents returns the application components
func (app *MirrorApp) GetComponents() *AppComponents {
	return app.components
}
