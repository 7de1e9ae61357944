// Package store persists search-provider results between runs so repeated
// verification of the same reference does not hit external APIs again.
package store

import (
	"context"
	"time"
)

// Cache is a byte-oriented TTL cache.
type Cache interface {
	// Get returns the cached payload, or nil with no error on a miss or
	// an expired entry.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores data under key until ttl elapses, replacing any entry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// DeleteExpired purges expired entries and returns how many were removed.
	DeleteExpired(ctx context.Context) (int, error)
	Close() error
}
