// Package notify fans change events out to the configured sinks.
//
// Every sink receives every event independently. A failing or slow sink is
// logged and counted, and never affects the other sinks or the caller.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/plugin-mirror/internal/otel"
	"github.com/stacklok/plugin-mirror/internal/registry"
	"github.com/stacklok/plugin-mirror/internal/telemetry"
)

// DefaultTimeout bounds the delivery to a single sink
const DefaultTimeout = 5 * time.Second

// Event is the change event published for an updated plugin
type Event struct {
	Slug        string `json:"slug"`
	LastUpdated string `json:"last_updated"`
}

// EventFor builds the change event of a plugin
func EventFor(plugin *registry.Plugin) Event {
	return Event{Slug: plugin.Slug, LastUpdated: plugin.LastUpdated}
}

// Marshal returns the wire form of the event
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Sink delivers events to one destination
//
//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks -source=notify.go Sink
type Sink interface {
	// Name identifies the sink in logs and metrics
	Name() string

	// Publish delivers one event
	Publish(ctx context.Context, event Event) error
}

// Notifier publishes events to a set of sinks
type Notifier struct {
	sinks   []Sink
	timeout time.Duration
	metrics *telemetry.NotifyMetrics
	tracer  trace.Tracer
}

// Option configures a Notifier
type Option func(*Notifier)

// WithTimeout sets the per-sink delivery timeout
func WithTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

// WithMetrics sets the delivery metrics
func WithMetrics(metrics *telemetry.NotifyMetrics) Option {
	return func(n *Notifier) {
		n.metrics = metrics
	}
}

// WithTracer sets the tracer for delivery spans
func WithTracer(tracer trace.Tracer) Option {
	return func(n *Notifier) {
		n.tracer = tracer
	}
}

// NewNotifier creates a notifier for sinks. With no sinks Publish is a no-op.
func NewNotifier(sinks []Sink, opts ...Option) *Notifier {
	n := &Notifier{
		sinks:   sinks,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Sinks returns the names of the configured sinks
func (n *Notifier) Sinks() []string {
	names := make([]string, 0, len(n.sinks))
	for _, s := range n.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Publish delivers event to every sink concurrently and waits until each
// has acknowledged, failed or timed out. It returns the number of sinks
// that acknowledged.
func (n *Notifier) Publish(ctx context.Context, event Event) int {
	if len(n.sinks) == 0 {
		return 0
	}

	ctx, span := otel.StartSpan(ctx, n.tracer, "notify.Publish",
		trace.WithAttributes(otel.AttrPluginSlug.String(event.Slug)))
	defer span.End()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		acked int
	)
	for _, sink := range n.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if n.deliver(ctx, sink, event) {
				mu.Lock()
				acked++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return acked
}

func (n *Notifier) deliver(ctx context.Context, sink Sink, event Event) bool {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err := sink.Publish(ctx, event)
	n.metrics.RecordDelivery(ctx, sink.Name(), err == nil)
	if err != nil {
		slog.WarnContext(ctx, "Failed to publish change event",
			"sink", sink.Name(),
			"slug", event.Slug,
			"error", err)
		return false
	}

	slog.DebugContext(ctx, "Published change event", "sink", sink.Name(), "slug", event.Slug)
	return true
}

// Close releases every sink that holds resources
func (n *Notifier) Close() error {
	var errs []error
	for _, sink := range n.sinks {
		if closer, ok := sink.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
