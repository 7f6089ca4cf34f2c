// Package api provides the HTTP server for the plugin mirror.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/plugin-mirror/internal/api/health"
	"github.com/stacklok/plugin-mirror/internal/api/plugins"
	"github.com/stacklok/plugin-mirror/internal/service"
	pkgsync "github.com/stacklok/plugin-mirror/internal/sync"
)

// DefaultRequestTimeout bounds the read endpoints
const DefaultRequestTimeout = 10 * time.Second

// ServerOption configures the API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	devMode        bool
	requestTimeout time.Duration
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithDevMode exposes error details in responses
func WithDevMode(devMode bool) ServerOption {
	return func(cfg *serverConfig) {
		cfg.devMode = devMode
	}
}

// WithRequestTimeout sets the timeout of the read endpoints. Zero disables it.
func WithRequestTimeout(timeout time.Duration) ServerOption {
	return func(cfg *serverConfig) {
		cfg.requestTimeout = timeout
	}
}

// NewServer creates and configures the HTTP router with the given service, runner and options
func NewServer(svc service.Service, runner pkgsync.Runner, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares:    []func(http.Handler) http.Handler{},
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	// Mount health check routes directly at root
	r.Mount("/", health.Router(svc))
	r.Mount("/plugins", plugins.Router(svc, runner, cfg.devMode, cfg.requestTimeout))

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
