// Package registry contains the plugin record model shared by the cache,
// the sync engine and the query façade.
//
// A Plugin keeps the remote payload verbatim. Only the fields the mirror
// reasons about (slug, last_updated) are lifted into typed fields;
// everything else rides along in Fields and is written back unchanged.
package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/stacklok/plugin-mirror/internal/cursor"
)

const (
	fieldSlug            = "slug"
	fieldLastUpdated     = "last_updated"
	fieldLastUpdatedTime = "last_updated_time"
	fieldVersion         = "version"
	fieldName            = "name"
	fieldTags            = "tags"
)

// Plugin is one record of the remote plugin directory.
type Plugin struct {
	Slug        string
	LastUpdated string

	// LastUpdatedTime is always cursor.Decode(LastUpdated). It is derived on
	// decode and by Normalize, never taken from the payload.
	LastUpdatedTime time.Time

	// Fields holds every other payload field as received.
	Fields map[string]json.RawMessage
}

// Normalize recomputes LastUpdatedTime from LastUpdated.
func (p *Plugin) Normalize() {
	p.LastUpdatedTime = cursor.Decode(p.LastUpdated)
}

// Version returns the payload "version" field, or "" when absent.
func (p *Plugin) Version() string {
	return p.stringField(fieldVersion)
}

// Name returns the payload "name" field, or "" when absent.
func (p *Plugin) Name() string {
	return p.stringField(fieldName)
}

// Tags returns the plugin's tag slugs, sorted.
// The directory encodes tags as an object of slug to label; older payloads
// use a plain list. Both shapes are accepted.
func (p *Plugin) Tags() []string {
	raw, ok := p.Fields[fieldTags]
	if !ok {
		return []string{}
	}

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil {
		tags := make([]string, 0, len(asMap))
		for tag := range asMap {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		return tags
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		sort.Strings(asList)
		return asList
	}
	return []string{}
}

func (p *Plugin) stringField(name string) string {
	raw, ok := p.Fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// MarshalJSON writes the original payload plus slug, last_updated and a
// RFC 3339 last_updated_time.
func (p Plugin) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Fields)+3)
	for k, v := range p.Fields {
		out[k] = v
	}
	out[fieldSlug] = p.Slug
	out[fieldLastUpdated] = p.LastUpdated
	out[fieldLastUpdatedTime] = cursor.Decode(p.LastUpdated).Format(time.RFC3339)
	return json.Marshal(out)
}

// UnmarshalJSON reads a directory payload. Any last_updated_time present in
// the payload is discarded and recomputed.
func (p *Plugin) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to decode plugin: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("failed to decode plugin: payload is not an object")
	}

	var plugin Plugin
	if raw, ok := fields[fieldSlug]; ok {
		if err := json.Unmarshal(raw, &plugin.Slug); err != nil {
			return fmt.Errorf("failed to decode plugin slug: %w", err)
		}
	}
	if raw, ok := fields[fieldLastUpdated]; ok {
		// Tolerate non-string values; they decode to the epoch.
		_ = json.Unmarshal(raw, &plugin.LastUpdated)
	}
	delete(fields, fieldSlug)
	delete(fields, fieldLastUpdated)
	delete(fields, fieldLastUpdatedTime)

	plugin.Fields = fields
	plugin.Normalize()
	*p = plugin
	return nil
}

// ListInfo is the pagination block of a directory listing.
type ListInfo struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	Results int `json:"results"`
}

// PluginList is a page of plugins as served by the directory and by the
// mirror's own listing endpoint.
type PluginList struct {
	Info    ListInfo  `json:"info"`
	Plugins []*Plugin `json:"plugins"`
}
