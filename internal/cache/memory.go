package cache

import (
	"bytes"
	"sync"
)

// memoryTier is the fast tier. It has no eviction: it mirrors every entry
// the process has read or written. Entries are replaced whole under the
// lock, so a reader sees either the old or the new value.
type memoryTier struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func newMemoryTier() *memoryTier {
	return &memoryTier{entries: make(map[string]*Entry)}
}

func (m *memoryTier) get(key string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// swap stores e and reports the change relative to the previous value.
func (m *memoryTier) swap(e *Entry) Change {
	stored := e.clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.entries[e.Key]
	m.entries[e.Key] = stored
	switch {
	case !ok:
		return ChangeInserted
	case bytes.Equal(prev.Value, stored.Value):
		return ChangeNone
	default:
		return ChangeUpdated
	}
}

// fill stores e only when the key is absent, so a read repair never
// overwrites a newer concurrent write.
func (m *memoryTier) fill(e *Entry) {
	stored := e.clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[e.Key]; !ok {
		m.entries[e.Key] = stored
	}
}

// latest returns the record entry with the greatest LastUpdatedTime.
func (m *memoryTier) latest() (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Entry
	for _, e := range m.entries {
		if e.Kind != KindRecord {
			continue
		}
		if best == nil || e.LastUpdatedTime.After(best.LastUpdatedTime) {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.clone(), true
}

func (m *memoryTier) snapshot() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.clone())
	}
	return out
}

func (m *memoryTier) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
