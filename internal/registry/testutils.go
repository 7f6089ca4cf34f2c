package registry

import (
	"encoding/json"
	"time"

	"github.com/stacklok/plugin-mirror/internal/cursor"
)

// PluginOption is a function that configures a Plugin for testing
type PluginOption func(*Plugin)

// NewTestPlugin creates a Plugin for testing with default values
// and applies any provided options
func NewTestPlugin(slug string, opts ...PluginOption) *Plugin {
	plugin := &Plugin{
		Slug:        slug,
		LastUpdated: "2024-01-01 12:00pm GMT",
		Fields: map[string]json.RawMessage{
			fieldName:    mustRaw(slug + " plugin"),
			fieldVersion: mustRaw("1.0.0"),
		},
	}

	for _, opt := range opts {
		opt(plugin)
	}
	plugin.Normalize()

	return plugin
}

// WithLastUpdated sets the provider timestamp text
func WithLastUpdated(text string) PluginOption {
	return func(p *Plugin) {
		p.LastUpdated = text
	}
}

// WithLastUpdatedTime sets the provider timestamp from a time value
func WithLastUpdatedTime(t time.Time) PluginOption {
	return func(p *Plugin) {
		p.LastUpdated = cursor.Encode(t)
	}
}

// WithVersion sets the plugin version
func WithVersion(version string) PluginOption {
	return func(p *Plugin) {
		p.Fields[fieldVersion] = mustRaw(version)
	}
}

// WithTags sets the plugin tags in the directory's object form
func WithTags(tags ...string) PluginOption {
	return func(p *Plugin) {
		m := make(map[string]string, len(tags))
		for _, tag := range tags {
			m[tag] = tag
		}
		p.Fields[fieldTags] = mustRaw(m)
	}
}

// WithField sets an arbitrary payload field
func WithField(name string, value any) PluginOption {
	return func(p *Plugin) {
		p.Fields[name] = mustRaw(value)
	}
}

func mustRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
