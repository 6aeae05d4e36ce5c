// Package cache provides the key/value cache abstraction and the
// read-through user cache built on top of it.
package cache

import (
	"context"
	"time"
)

// Backend is a pluggable key/value store with TTL. Get returns
// autherrors.ErrCacheMiss when the key is absent or expired; any other
// failure is reported as autherrors.ErrCacheUnavailable so callers can
// degrade to the primary datastore without inspecting backend internals.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}
