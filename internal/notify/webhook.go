package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/stacklok/plugin-mirror/internal/httpclient"
)

// WebhookSink POSTs events as JSON to a URL
type WebhookSink struct {
	name   string
	url    string
	client httpclient.Client
}

var _ Sink = (*WebhookSink)(nil)

// NewWebhookSink creates a sink posting to endpoint. An empty name defaults
// to the endpoint host.
func NewWebhookSink(client httpclient.Client, name, endpoint string) (*WebhookSink, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook URL %q", endpoint)
	}
	if name == "" {
		name = u.Host
	}
	return &WebhookSink{name: "webhook:" + name, url: endpoint, client: client}, nil
}

// Name implements Sink
func (s *WebhookSink) Name() string {
	return s.name
}

// Publish implements Sink
func (s *WebhookSink) Publish(ctx context.Context, event Event) error {
	body, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := s.client.PostJSON(ctx, s.url, body); err != nil {
		return fmt.Errorf("webhook %s: %w", s.name, err)
	}
	return nil
}
