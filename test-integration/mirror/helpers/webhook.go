package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/stacklok/plugin-mirror/internal/notify"
)

// WebhookRecorder collects the change events posted to it
type WebhookRecorder struct {
	mu     sync.Mutex
	events []notify.Event
	server *httptest.Server
}

// NewWebhookRecorder starts a recorder
func NewWebhookRecorder() *WebhookRecorder {
	rec := &WebhookRecorder{}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event notify.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		rec.mu.Lock()
		rec.events = append(rec.events, event)
		rec.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	return rec
}

// URL returns the webhook endpoint
func (r *WebhookRecorder) URL() string {
	return r.server.URL + "/hooks/plugins"
}

// Close stops the server
func (r *WebhookRecorder) Close() {
	r.server.Close()
}

// Slugs returns the slugs of the received events in arrival order
func (r *WebhookRecorder) Slugs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	slugs := make([]string, 0, len(r.events))
	for _, e := range r.events {
		slugs = append(slugs, e.Slug)
	}
	return slugs
}
