// Package plugins provides the plugin directory endpoints: the info API
// compatible with the remote directory, and the update trigger.
package plugins

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/plugin-mirror/internal/api/common"
	"github.com/stacklok/plugin-mirror/internal/feed"
	"github.com/stacklok/plugin-mirror/internal/service"
	"github.com/stacklok/plugin-mirror/internal/status"
	pkgsync "github.com/stacklok/plugin-mirror/internal/sync"
)

// ReasonAPI is the trigger reason recorded for runs started over HTTP
const ReasonAPI = "api"

// Routes handles HTTP requests for the plugin endpoints.
type Routes struct {
	service service.Service
	runner  pkgsync.Runner
	devMode bool
}

// NewRoutes creates a new Routes instance.
func NewRoutes(svc service.Service, runner pkgsync.Runner, devMode bool) *Routes {
	return &Routes{
		service: svc,
		runner:  runner,
		devMode: devMode,
	}
}

// Router creates the router for the plugin endpoints. A positive
// readTimeout bounds the read endpoints; the update trigger is never bounded.
func Router(svc service.Service, runner pkgsync.Runner, devMode bool, readTimeout time.Duration) http.Handler {
	routes := NewRoutes(svc, runner, devMode)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if readTimeout > 0 {
			r.Use(middleware.Timeout(readTimeout))
		}
		r.Get("/info/1.2", routes.info)
		r.Get("/info/1.2/", routes.info)
		r.Get("/update-status", routes.updateStatus)
	})
	r.Post("/update", routes.update)

	return r
}

// info dispatches on the action query parameter
func (routes *Routes) info(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case feed.ActionPluginInformation:
		routes.pluginInformation(w, r)
	case feed.ActionQueryPlugins:
		routes.queryPlugins(w, r)
	default:
		common.WriteErrorResponse(w, "Invalid or unsupported action", http.StatusBadRequest)
	}
}

func (routes *Routes) pluginInformation(w http.ResponseWriter, r *http.Request) {
	slug, err := common.GetQueryParam(r, "slug", "request[slug]")
	if err != nil {
		common.WriteError(w, err, routes.devMode)
		return
	}

	plugin, err := routes.service.PluginInformation(r.Context(), slug)
	if err != nil {
		common.WriteError(w, err, routes.devMode)
		return
	}

	common.WriteJSONResponse(w, plugin, http.StatusOK)
}

func (routes *Routes) queryPlugins(w http.ResponseWriter, r *http.Request) {
	opts := []service.Option[service.QueryOptions]{}

	page, ok, err := common.GetQueryInt(r, "request[page]")
	if err != nil {
		common.WriteError(w, err, routes.devMode)
		return
	}
	if ok {
		opts = append(opts, service.WithPage(page))
	}

	perPage, ok, err := common.GetQueryInt(r, "request[per_page]")
	if err != nil {
		common.WriteError(w, err, routes.devMode)
		return
	}
	if ok {
		opts = append(opts, service.WithPerPage(perPage))
	}

	if browse := r.URL.Query().Get("request[browse]"); browse != "" {
		opts = append(opts, service.WithBrowse(browse))
	}

	list, err := routes.service.QueryPlugins(r.Context(), opts...)
	if err != nil {
		common.WriteError(w, err, routes.devMode)
		return
	}

	common.WriteJSONResponse(w, list, http.StatusOK)
}

// update runs a synchronization and returns its summary. The run is
// detached from the request so a disconnecting client does not abort it.
func (routes *Routes) update(w http.ResponseWriter, r *http.Request) {
	force, err := common.GetQueryBool(r, "force")
	if err != nil {
		common.WriteError(w, err, routes.devMode)
		return
	}

	summary := routes.runner.Trigger(context.WithoutCancel(r.Context()), pkgsync.TriggerOptions{
		Force:  force,
		Reason: ReasonAPI,
	})

	statusCode := http.StatusOK
	if summary.Status == status.RunStatusAlreadyInProgress {
		statusCode = http.StatusConflict
	}
	common.WriteJSONResponse(w, summary, statusCode)
}

func (routes *Routes) updateStatus(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, routes.runner.Status(), http.StatusOK)
}
