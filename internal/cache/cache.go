// Package cache stores timestamped JSON payloads in a kvstore and answers
// reads relative to a caller-supplied TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/kvstore"
)

// Namespace prefixes every key written through Key.
const Namespace = "catchfeed:"

// Key returns the namespaced form of name.
func Key(name string) string {
	return Namespace + name
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp *int64          `json:"timestamp"`
}

// Cache reads and writes envelopes in a kvstore.Store.
type Cache struct {
	kv  kvstore.Store
	now func() time.Time
}

// New creates a cache over kv using the wall clock.
func New(kv kvstore.Store) *Cache {
	return &Cache{kv: kv, now: time.Now}
}

// WithClock replaces the clock used to stamp writes and judge freshness.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Now returns the cache clock's current time.
func (c *Cache) Now() time.Time {
	return c.now()
}

// Read returns the payload stored under key if it was written less than ttl
// ago. Missing, corrupt or expired entries are reported as absent.
func Read[T any](ctx context.Context, c *Cache, key string, ttl time.Duration) (T, bool) {
	var zero T
	v, written, ok := ReadStale[T](ctx, c, key)
	if !ok {
		return zero, false
	}
	if c.now().Sub(written) >= ttl {
		return zero, false
	}
	return v, true
}

// ReadStale returns the payload under key and its write time regardless of age.
func ReadStale[T any](ctx context.Context, c *Cache, key string) (T, time.Time, bool) {
	var zero T

	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		slog.Warn("Cache read failed", slog.String("key", key), slog.Any("error", err))
		return zero, time.Time{}, false
	}
	if !ok {
		return zero, time.Time{}, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		slog.Warn("Discarding corrupt cache entry", slog.String("key", key), slog.Any("error", err))
		return zero, time.Time{}, false
	}
	if env.Timestamp == nil || len(env.Data) == 0 {
		return zero, time.Time{}, false
	}

	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		slog.Warn("Discarding unparsable cache payload", slog.String("key", key), slog.Any("error", err))
		return zero, time.Time{}, false
	}
	return v, time.UnixMilli(*env.Timestamp), true
}

// Write stores value under key stamped with the current time, replacing any
// previous entry.
func Write[T any](ctx context.Context, c *Cache, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache payload: %w", err)
	}
	ts := c.now().UnixMilli()
	raw, err := json.Marshal(envelope{Data: data, Timestamp: &ts})
	if err != nil {
		return fmt.Errorf("encoding cache envelope: %w", err)
	}
	return c.kv.Set(ctx, key, string(raw))
}

// Clear removes the given keys.
func (c *Cache) Clear(ctx context.Context, keys ...string) error {
	return c.kv.Remove(ctx, keys...)
}
