package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stacklok/plugin-mirror/internal/registry"
)

// FakeDirectory serves the plugin info API the way the public directory
// does: listings newest first and single plugins by slug.
type FakeDirectory struct {
	mu      sync.Mutex
	plugins map[string]*registry.Plugin

	listRequests atomic.Int64
	infoRequests atomic.Int64

	server *httptest.Server
}

// NewFakeDirectory starts a fake directory holding plugins
func NewFakeDirectory(plugins ...*registry.Plugin) *FakeDirectory {
	d := &FakeDirectory{plugins: make(map[string]*registry.Plugin)}
	for _, p := range plugins {
		d.plugins[p.Slug] = p
	}

	d.server = httptest.NewServer(http.HandlerFunc(d.serveInfo))
	d.server.Config.SetKeepAlivesEnabled(false)
	return d
}

// URL returns the base URL to configure as remote.baseURL
func (d *FakeDirectory) URL() string {
	return d.server.URL
}

// Close stops the server
func (d *FakeDirectory) Close() {
	d.server.Close()
}

// Put adds or replaces a plugin
func (d *FakeDirectory) Put(plugin *registry.Plugin) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plugins[plugin.Slug] = plugin
}

// Bump publishes a new version of slug updated at t
func (d *FakeDirectory) Bump(slug, version string, t time.Time) {
	d.Put(registry.NewTestPlugin(slug,
		registry.WithVersion(version),
		registry.WithLastUpdatedTime(t)))
}

// ListRequests returns the number of query_plugins requests served
func (d *FakeDirectory) ListRequests() int64 {
	return d.listRequests.Load()
}

// InfoRequests returns the number of plugin_information requests served
func (d *FakeDirectory) InfoRequests() int64 {
	return d.infoRequests.Load()
}

func (d *FakeDirectory) serveInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	q := r.URL.Query()

	switch q.Get("action") {
	case "query_plugins":
		d.listRequests.Add(1)
		page, _ := strconv.Atoi(q.Get("request[page]"))
		perPage, _ := strconv.Atoi(q.Get("request[per_page]"))
		_ = json.NewEncoder(w).Encode(d.listing(max(page, 1), max(perPage, 1)))
	case "plugin_information":
		d.infoRequests.Add(1)
		d.mu.Lock()
		plugin, ok := d.plugins[q.Get("request[slug]")]
		d.mu.Unlock()
		if !ok {
			_, _ = w.Write([]byte(`{"error":"Plugin not found."}`))
			return
		}
		_ = json.NewEncoder(w).Encode(plugin)
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Action not implemented."}`))
	}
}

func (d *FakeDirectory) listing(page, perPage int) *registry.PluginList {
	d.mu.Lock()
	all := make([]*registry.Plugin, 0, len(d.plugins))
	for _, p := range d.plugins {
		all = append(all, p)
	}
	d.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].LastUpdatedTime.Equal(all[j].LastUpdatedTime) {
			return all[i].LastUpdatedTime.After(all[j].LastUpdatedTime)
		}
		return all[i].Slug < all[j].Slug
	})

	list := &registry.PluginList{
		Info: registry.ListInfo{
			Page:    page,
			Pages:   (len(all) + perPage - 1) / perPage,
			Results: len(all),
		},
		Plugins: []*registry.Plugin{},
	}
	start := (page - 1) * perPage
	if start < len(all) {
		list.Plugins = all[start:min(start+perPage, len(all))]
	}
	return list
}
