// Package kvstore provides the local string-keyed persistence used by the
// feed cache. Implementations offer no transactions; a Set replaces the whole
// value so readers never observe a partial write.
package kvstore

import "context"

// Store is simple string-keyed local persistence.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}
