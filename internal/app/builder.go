package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/plugin-mirror/internal/api"
	"github.com/stacklok/plugin-mirror/internal/app/storage"
	"github.com/stacklok/plugin-mirror/internal/config"
	"github.com/stacklok/plugin-mirror/internal/feed"
	"github.com/stacklok/plugin-mirror/internal/filtering"
	"github.com/stacklok/plugin-mirror/internal/httpclient"
	"github.com/stacklok/plugin-mirror/internal/notify"
	"github.com/stacklok/plugin-mirror/internal/service"
	pkgsync "github.com/stacklok/plugin-mirror/internal/sync"
	"github.com/stacklok/plugin-mirror/internal/sync/coordinator"
	"github.com/stacklok/plugin-mirror/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	tracerPrefix = "github.com/stacklok/plugin-mirror/"
)

// MirrorAppOptions is a function that configures the mirror app builder
type MirrorAppOptions func(*mirrorAppConfig) error

// mirrorAppConfig holds everything NewMirrorApp needs. Component overrides
// are primarily for testing.
type mirrorAppConfig struct {
	config *config.Config

	// Optional component overrides
	storageFactory storage.Factory
	feedClient     feed.Client
	sinks          []notify.Sink
	runner         pkgsync.Runner
	pluginService  service.Service

	// Startup
	migrations bool

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

func baseConfig(opts ...MirrorAppOptions) (*mirrorAppConfig, error) {
	cfg := &mirrorAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return cfg, nil
}

func (b *mirrorAppConfig) tracer(component string) trace.Tracer {
	if b.tracerProvider == nil {
		return nil
	}
	return b.tracerProvider.Tracer(tracerPrefix + component)
}

// NewMirrorApp builds the application from its configuration
func NewMirrorApp(
	ctx context.Context,
	opts ...MirrorAppOptions,
) (*MirrorApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components.PluginService, components.Runner)
	if err != nil {
		components.close()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &MirrorApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// buildComponents builds the store, sync and service components. On error
// everything built so far is released.
func buildComponents(ctx context.Context, b *mirrorAppConfig) (*AppComponents, error) {
	components := &AppComponents{}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			components.close()
		}
	}()

	if err := buildStoreComponents(ctx, b, components); err != nil {
		return nil, fmt.Errorf("failed to build store components: %w", err)
	}

	if b.feedClient == nil {
		client, err := buildFeedClient(b)
		if err != nil {
			return nil, fmt.Errorf("failed to build feed client: %w", err)
		}
		b.feedClient = client
	}

	if err := buildSyncComponents(ctx, b, components); err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	if err := buildServiceComponents(b, components); err != nil {
		return nil, fmt.Errorf("failed to build service components: %w", err)
	}

	cleanupNeeded = false
	return components, nil
}

// buildStoreComponents creates the record store through the storage factory
// and fills its fast tier from the snapshot, if configured.
func buildStoreComponents(ctx context.Context, b *mirrorAppConfig, components *AppComponents) error {
	if b.runner != nil && b.pluginService != nil {
		return nil
	}

	slog.Info("Initializing record store")

	cacheMetrics, err := telemetry.NewCacheMetrics(b.meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create cache metrics: %w", err)
	}

	if b.storageFactory == nil {
		b.storageFactory, err = storage.NewStorageFactory(ctx, b.config,
			storage.WithTracer(b.tracer("cache")),
			storage.WithCacheMetrics(cacheMetrics),
			storage.WithMigrations(b.migrations),
		)
		if err != nil {
			return fmt.Errorf("failed to create storage factory: %w", err)
		}
	}
	components.StorageFactory = b.storageFactory

	store, err := b.storageFactory.CreateStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to create record store: %w", err)
	}
	components.Store = store

	if path := b.config.Cache.SnapshotFile; path != "" {
		loaded, err := store.LoadSnapshot(path)
		if err != nil {
			slog.Warn("Failed to load cache snapshot", "path", path, "error", err)
		} else {
			slog.Info("Loaded cache snapshot", "path", path, "entries", loaded)
		}
	}

	return nil
}

// buildFeedClient creates the client of the remote directory
func buildFeedClient(b *mirrorAppConfig) (*feed.HTTPClient, error) {
	remote := b.config.Remote
	return feed.NewHTTPClient(
		httpclient.NewDefaultClient(remote.GetTimeout()),
		remote.BaseURL,
		feed.WithHostHeader(remote.HostHeader),
		feed.WithTracer(b.tracer("feed")),
	)
}

// buildSinks creates the configured notification sinks. A sink that cannot
// be created is logged and left out so the mirror keeps serving.
func buildSinks(ctx context.Context, cfg *config.NotificationsConfig) []notify.Sink {
	var sinks []notify.Sink
	if cfg == nil {
		return sinks
	}

	if cfg.PubSub != nil && cfg.PubSub.Enabled {
		sink, err := notify.NewPubSubSink(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			slog.Warn("Pub/Sub notifications disabled", "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	if cfg.PubNub != nil && cfg.PubNub.Enabled {
		sink, err := notify.NewPubNubSink(notify.PubNubConfig{
			PublishKey:   cfg.PubNub.PublishKey,
			SubscribeKey: cfg.PubNub.SubscribeKey,
			UserID:       cfg.PubNub.UserID,
			Channel:      cfg.PubNub.Channel,
		})
		if err != nil {
			slog.Warn("PubNub notifications disabled", "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	if len(cfg.Webhooks) > 0 {
		client := httpclient.NewDefaultClient(cfg.GetTimeout())
		for _, hook := range cfg.Webhooks {
			sink, err := notify.NewWebhookSink(client, hook.Name, hook.URL)
			if err != nil {
				slog.Warn("Webhook notifications disabled", "webhook", hook.Name, "error", err)
				continue
			}
			sinks = append(sinks, sink)
		}
	}

	return sinks
}

// buildSyncComponents builds the notifier, the engine and the coordinator
func buildSyncComponents(
	ctx context.Context,
	b *mirrorAppConfig,
	components *AppComponents,
) error {
	slog.Info("Initializing sync components")

	if b.runner == nil {
		notifyMetrics, err := telemetry.NewNotifyMetrics(b.meterProvider)
		if err != nil {
			return fmt.Errorf("failed to create notify metrics: %w", err)
		}

		sinks := b.sinks
		if sinks == nil {
			sinks = buildSinks(ctx, b.config.Notifications)
		}
		components.Notifier = notify.NewNotifier(sinks,
			notify.WithTimeout(b.config.Notifications.GetTimeout()),
			notify.WithMetrics(notifyMetrics),
			notify.WithTracer(b.tracer("notify")),
		)
		slog.Info("Notification sinks configured", "sinks", components.Notifier.Sinks())

		filter, err := filtering.New(b.config.Sync.Filter)
		if err != nil {
			return fmt.Errorf("failed to build filter: %w", err)
		}

		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return fmt.Errorf("failed to create sync metrics: %w", err)
		}

		marker, err := b.storageFactory.CreateMarkerStore(ctx)
		if err != nil {
			return fmt.Errorf("failed to create marker store: %w", err)
		}

		engine, err := pkgsync.NewEngine(b.feedClient, components.Store, marker,
			pkgsync.WithNotifier(components.Notifier),
			pkgsync.WithFilter(filter),
			pkgsync.WithPageSize(b.config.Remote.PageSize),
			pkgsync.WithLimits(b.config.Sync.MaxPages, b.config.Sync.MaxRecords),
			pkgsync.WithMetrics(syncMetrics),
			pkgsync.WithTracer(b.tracer("sync")),
		)
		if err != nil {
			return fmt.Errorf("failed to create sync engine: %w", err)
		}
		b.runner = engine
	}
	components.Runner = b.runner

	components.SyncCoordinator = coordinator.New(b.runner, coordinator.FromConfig(b.config.Sync)...)
	slog.Info("Sync components initialized successfully")
	return nil
}

// buildServiceComponents builds the plugin service
func buildServiceComponents(b *mirrorAppConfig, components *AppComponents) error {
	slog.Info("Initializing service components")

	if b.pluginService == nil {
		svc, err := service.New(components.Store, b.feedClient, service.WithTracer(b.tracer("service")))
		if err != nil {
			return fmt.Errorf("failed to create plugin service: %w", err)
		}
		b.pluginService = svc
	}
	components.PluginService = b.pluginService

	slog.Info("Service components initialized successfully")
	return nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *mirrorAppConfig,
	svc service.Service,
	runner pkgsync.Runner,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			api.LoggingMiddleware,
		}
	}

	// Telemetry middleware goes first to capture all requests
	httpMetrics, err := telemetry.NewHTTPMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	middlewares := append([]func(http.Handler) http.Handler{
		telemetry.TracingMiddleware(b.tracerProvider),
		httpMetrics.Middleware,
	}, b.middlewares...)

	router := api.NewServer(svc, runner,
		api.WithMiddlewares(middlewares...),
		api.WithDevMode(b.config.DevMode),
		api.WithRequestTimeout(b.requestTimeout),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		parts := strings.SplitN(addr, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		host, port := parts[0], parts[1]

		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout sets the timeout of the read endpoints
func WithRequestTimeout(timeout time.Duration) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		if timeout < 0 {
			return fmt.Errorf("request timeout cannot be negative")
		}
		cfg.requestTimeout = timeout
		return nil
	}
}

// WithMigrations applies pending database migrations at startup
func WithMigrations(enabled bool) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.migrations = enabled
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithFeedClient allows injecting a custom feed client (for testing)
func WithFeedClient(c feed.Client) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.feedClient = c
		return nil
	}
}

// WithSinks replaces the configured notification sinks
func WithSinks(sinks ...notify.Sink) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.sinks = append([]notify.Sink{}, sinks...)
		return nil
	}
}

// WithRunner allows injecting a custom sync runner (for testing)
func WithRunner(r pkgsync.Runner) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.runner = r
		return nil
	}
}

// WithPluginService allows injecting a custom plugin service (for testing)
func WithPluginService(svc service.Service) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.pluginService = svc
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider
func WithMeterProvider(mp metric.MeterProvider) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}
