package objectstore

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

type memoryEntry struct {
	data    []byte
	version int64
}

// InMemoryStore is the reference implementation used by tests and the dev
// profile. Versions are a per-key counter starting at 1.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*memoryEntry)}
}

// Get implements Store.
func (s *InMemoryStore) Get(ctx context.Context, key string) ([]byte, Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, VersionNone, ErrNotFound
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, Version(strconv.FormatInt(e.version, 10)), nil
}

// Put implements Store.
func (s *InMemoryStore) Put(ctx context.Context, key string, data []byte, expected Version) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]

	switch expected {
	case VersionAny:
		// Unconditional.
	case VersionNone:
		if exists {
			return VersionNone, ErrConditionFailed
		}
	default:
		if !exists {
			return VersionNone, ErrConditionFailed
		}
		want, err := strconv.ParseInt(string(expected), 10, 64)
		if err != nil || e.version != want {
			return VersionNone, ErrConditionFailed
		}
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	var next int64 = 1
	if exists {
		next = e.version + 1
	}
	s.entries[key] = &memoryEntry{data: stored, version: next}
	return Version(strconv.FormatInt(next, 10)), nil
}

// List implements Store.
func (s *InMemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
