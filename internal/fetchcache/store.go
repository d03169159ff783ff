package fetchcache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"gamepulse/internal/source"
)

// Entry is one memoized fetch result.
type Entry struct {
	Key       string          `json:"key"`
	Rows      []source.RawRow `json:"rows"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Store persists cache entries. Implementations may be in-memory, on disk,
// or remote; the cache layer owns staleness policy, stores only hold bytes.
// Get treats any internal read problem as a miss.
type Store interface {
	Get(key string) (Entry, bool)
	Put(key string, entry Entry) error
}

// MemoryStore is a capacity-bounded LRU store.
type MemoryStore struct {
	entries *lru.Cache[string, Entry]
}

// NewMemoryStore creates a store evicting least-recently-used entries beyond
// capacity. Capacity must be positive.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("memory store: capacity must be positive, got %d", capacity)
	}
	entries, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	return &MemoryStore{entries: entries}, nil
}

// Get returns the entry for key if present.
func (s *MemoryStore) Get(key string) (Entry, bool) {
	return s.entries.Get(key)
}

// Put stores the entry, evicting the least recently used one if full.
func (s *MemoryStore) Put(key string, entry Entry) error {
	s.entries.Add(key, entry)
	return nil
}

// Len returns the number of cached entries.
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}
