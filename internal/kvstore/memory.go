package kvstore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultMemoryEntries bounds a memory store created with a non-positive size.
const DefaultMemoryEntries = 256

// Memory is a bounded in-memory Store. The least recently used keys are
// evicted once the size is exceeded.
type Memory struct {
	cache *lru.Cache
}

// NewMemory creates a memory store holding at most size entries.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	return &Memory{cache: cache}, nil
}

// Get returns the value stored under key.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

// Set stores value under key.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.cache.Add(key, value)
	return nil
}

// Remove deletes the given keys. Missing keys are ignored.
func (m *Memory) Remove(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.cache.Remove(k)
	}
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	return m.cache.Len()
}
