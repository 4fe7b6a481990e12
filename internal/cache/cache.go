// Package cache provides the read-through caches used by the settings store.
package cache

import "context"

// Cache is a string-keyed store of values with a fixed time-to-live.
// Implementations must be safe for concurrent use.
type Cache[V any] interface {
	// Get reports whether a live entry exists for key.
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, v V)
	Delete(ctx context.Context, key string)
	Close() error
}
