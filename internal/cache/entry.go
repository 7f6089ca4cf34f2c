// Package cache implements the mirror's two-tier record store.
//
// The fast tier is an unbounded in-process map that mirrors the durable
// tier. The durable tier (PostgreSQL, or a local bbolt file) is the system
// of record. Reads are cache-aside with read repair; writes go to the fast
// tier first and then best-effort to the durable tier. When the durable
// tier is unreachable the store keeps serving from memory and probes it
// again lazily, throttled by an exponential backoff.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/plugin-mirror/internal/registry"
)

// Kind distinguishes cached plugin records from cached remote responses.
type Kind string

const (
	// KindRecord is a single plugin record keyed by KeyForRecord
	KindRecord Kind = "record"

	// KindResponse is a cached remote response keyed by KeyFor
	KindResponse Kind = "response"
)

// Change reports what a write did to the store.
type Change int

const (
	// ChangeNone means the stored value was already identical
	ChangeNone Change = iota
	// ChangeInserted means the key did not exist before
	ChangeInserted
	// ChangeUpdated means the key existed with a different value
	ChangeUpdated
)

// String returns the lower-case name of the change
func (c Change) String() string {
	switch c {
	case ChangeNone:
		return "none"
	case ChangeInserted:
		return "inserted"
	case ChangeUpdated:
		return "updated"
	default:
		return fmt.Sprintf("change(%d)", int(c))
	}
}

// Changed reports whether the write inserted or modified a value
func (c Change) Changed() bool {
	return c == ChangeInserted || c == ChangeUpdated
}

var (
	// ErrDurableUnavailable is wrapped by Set when the durable write could not
	// be performed. The fast tier write still stands; callers treat it as a warning.
	ErrDurableUnavailable = errors.New("durable tier unavailable")

	// ErrNotFound is returned by durable tier lookups for absent keys
	ErrNotFound = errors.New("cache entry not found")
)

// Entry is one key/value pair of the store. Record entries also carry the
// slug and timestamps so the durable tier can sort and resolve cursors
// without decoding the value.
type Entry struct {
	Key             string
	Kind            Kind
	Slug            string
	LastUpdated     string
	LastUpdatedTime time.Time
	Value           json.RawMessage
}

// NewRecordEntry builds the entry for a plugin record under KeyForRecord.
// The plugin's comparable timestamp is recomputed before writing.
func NewRecordEntry(plugin *registry.Plugin) (*Entry, error) {
	if plugin == nil || plugin.Slug == "" {
		return nil, fmt.Errorf("plugin record requires a slug")
	}
	plugin.Normalize()

	value, err := json.Marshal(plugin)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plugin %s: %w", plugin.Slug, err)
	}

	return &Entry{
		Key:             KeyForRecord(plugin.Slug),
		Kind:            KindRecord,
		Slug:            plugin.Slug,
		LastUpdated:     plugin.LastUpdated,
		LastUpdatedTime: plugin.LastUpdatedTime,
		Value:           value,
	}, nil
}

// NewResponseEntry builds the entry for a cached remote response.
func NewResponseEntry(key string, body []byte) *Entry {
	return &Entry{
		Key:   key,
		Kind:  KindResponse,
		Value: json.RawMessage(body),
	}
}

// Plugin decodes a record entry's value.
func (e *Entry) Plugin() (*registry.Plugin, error) {
	if e.Kind != KindRecord {
		return nil, fmt.Errorf("entry %s is a %s, not a record", e.Key, e.Kind)
	}
	var plugin registry.Plugin
	if err := json.Unmarshal(e.Value, &plugin); err != nil {
		return nil, err
	}
	return &plugin, nil
}

// clone returns a copy safe to hand to callers.
func (e *Entry) clone() *Entry {
	c := *e
	c.Value = append(json.RawMessage(nil), e.Value...)
	return &c
}

// ListOptions selects a page of record entries.
type ListOptions struct {
	// Page is 1-based
	Page    int
	PerPage int
	// Sort "updated" orders by last_updated_time descending; anything else is storage order.
	Sort string
}

// SortUpdated orders listings newest-modified first
const SortUpdated = "updated"

func (o ListOptions) offset() int {
	if o.Page < 1 {
		return 0
	}
	return (o.Page - 1) * o.PerPage
}
