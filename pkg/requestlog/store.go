package requestlog

import "sync"

// Store defines the interface for per-imposter request history. Servers
// that do not record hold no Store at all.
type Store interface {
	// Log appends an entry.
	Log(entry *Entry)

	// List returns the recorded entries in arrival order.
	List() []*Entry

	// Count returns the number of recorded entries.
	Count() int

	// Clear removes all recorded entries.
	Clear()
}

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    []*Entry
	maxEntries int
}

// NewMemoryStore creates a store that keeps at most maxEntries entries,
// discarding the oldest first. maxEntries <= 0 means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{maxEntries: maxEntries}
}

// Log appends an entry.
func (s *MemoryStore) Log(entry *Entry) {
	if entry == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		s.entries = s.entries[len(s.entries)-s.maxEntries:]
	}
}

// List returns a copy of the recorded entries.
func (s *MemoryStore) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Count returns the number of recorded entries.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all recorded entries.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
