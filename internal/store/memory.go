package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when no value is stored under a key.
	ErrNotFound = errors.New("key not found")
)

// Store is a flat, string-valued key/value store with no TTL and no
// transactions. Implementations must be safe for concurrent use, but
// callers must not assume a Get followed by a Set is atomic.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// MemoryStore is a concurrency-safe in-memory Store. Its contents are lost
// when the process exits.
type MemoryStore struct {
	mu sync.RWMutex

	// key: store key, value: raw string value
	data map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]string),
	}
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key, replacing any previous value.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Keys returns all stored keys in lexical order.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
