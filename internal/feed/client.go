// Package feed is the client for the remote plugin directory.
//
// The directory serves both listings and single plugins from one endpoint,
// /plugins/info/1.2/, selected by the action query parameter.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/plugin-mirror/internal/httpclient"
	"github.com/stacklok/plugin-mirror/internal/otel"
	"github.com/stacklok/plugin-mirror/internal/registry"
)

const (
	// InfoPath is the directory's info endpoint
	InfoPath = "/plugins/info/1.2/"

	// ActionQueryPlugins lists plugins
	ActionQueryPlugins = "query_plugins"

	// ActionPluginInformation returns a single plugin
	ActionPluginInformation = "plugin_information"

	// BrowseUpdated orders listings by last update, newest first
	BrowseUpdated = "updated"
)

// ErrPluginNotFound is returned when the directory does not know a slug
var ErrPluginNotFound = errors.New("plugin not found")

// FetchError is a failed request to the directory. It wraps the
// *httpclient.HTTPError or transport error.
type FetchError struct {
	Action string
	Page   int
	Slug   string
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Slug != "":
		return fmt.Sprintf("failed to fetch plugin %s: %v", e.Slug, e.Err)
	case e.Page > 0:
		return fmt.Sprintf("failed to fetch page %d: %v", e.Page, e.Err)
	default:
		return fmt.Sprintf("failed to fetch %s: %v", e.Action, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PageRequest selects one page of a listing
type PageRequest struct {
	// Page is 1-based
	Page    int
	PerPage int
	Browse  string
}

// Page is one decoded listing page together with the raw body it was decoded from
type Page struct {
	registry.PluginList

	// Raw is the response body as received
	Raw json.RawMessage
}

// Client fetches from the remote plugin directory
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client
type Client interface {
	// FetchPage returns one listing page
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)

	// FetchPlugin returns a single plugin, or ErrPluginNotFound
	FetchPlugin(ctx context.Context, slug string) (*registry.Plugin, error)
}

// PageQuery returns the query parameters of a listing request
func PageQuery(req PageRequest) url.Values {
	q := url.Values{
		"action":            {ActionQueryPlugins},
		"request[page]":     {strconv.Itoa(req.Page)},
		"request[per_page]": {strconv.Itoa(req.PerPage)},
	}
	if req.Browse != "" {
		q.Set("request[browse]", req.Browse)
	}
	return q
}

// PluginQuery returns the query parameters of a single plugin request
func PluginQuery(slug string) url.Values {
	return url.Values{
		"action":        {ActionPluginInformation},
		"request[slug]": {slug},
	}
}

// HTTPClient is the Client implementation over HTTP
type HTTPClient struct {
	http    httpclient.Client
	baseURL string
	host    string
	tracer  trace.Tracer
}

var _ Client = (*HTTPClient)(nil)

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithHostHeader overrides the Host header sent to the directory. When not
// set, the base URL's host is sent.
func WithHostHeader(host string) Option {
	return func(c *HTTPClient) {
		if host != "" {
			c.host = host
		}
	}
}

// WithTracer sets the tracer for request spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *HTTPClient) {
		c.tracer = tracer
	}
}

// NewHTTPClient creates a client for the directory at baseURL
func NewHTTPClient(client httpclient.Client, baseURL string, opts ...Option) (*HTTPClient, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}

	c := &HTTPClient{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		host:    u.Host,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchPage implements Client
func (c *HTTPClient) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "feed.FetchPage",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			otel.AttrFeedAction.String(ActionQueryPlugins),
			otel.AttrPage.Int(req.Page),
			otel.AttrPageSize.Int(req.PerPage),
		))
	defer span.End()

	body, err := c.get(ctx, PageQuery(req))
	if err != nil {
		otel.RecordError(span, err)
		return nil, &FetchError{Action: ActionQueryPlugins, Page: req.Page, Err: err}
	}

	page := &Page{Raw: body}
	if err := json.Unmarshal(body, &page.PluginList); err != nil {
		otel.RecordError(span, err)
		return nil, &FetchError{
			Action: ActionQueryPlugins,
			Page:   req.Page,
			Err:    fmt.Errorf("failed to decode listing: %w", err),
		}
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(page.Plugins)))
	return page, nil
}

// FetchPlugin implements Client
func (c *HTTPClient) FetchPlugin(ctx context.Context, slug string) (*registry.Plugin, error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "feed.FetchPlugin",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			otel.AttrFeedAction.String(ActionPluginInformation),
			otel.AttrPluginSlug.String(slug),
		))
	defer span.End()

	body, err := c.get(ctx, PluginQuery(slug))
	if httpclient.StatusCode(err) == http.StatusNotFound {
		return nil, ErrPluginNotFound
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, &FetchError{Action: ActionPluginInformation, Slug: slug, Err: err}
	}

	// Unknown slugs may also come back as 200 {"error": "..."}.
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Error != "" {
		return nil, ErrPluginNotFound
	}

	var plugin registry.Plugin
	if err := json.Unmarshal(body, &plugin); err != nil {
		otel.RecordError(span, err)
		return nil, &FetchError{
			Action: ActionPluginInformation,
			Slug:   slug,
			Err:    fmt.Errorf("failed to decode plugin: %w", err),
		}
	}
	if plugin.Slug == "" {
		plugin.Slug = slug
	}
	return &plugin, nil
}

func (c *HTTPClient) get(ctx context.Context, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + InfoPath + "?" + query.Encode()
	return c.http.Get(ctx, endpoint, httpclient.WithHost(c.host))
}
