package storage

import (
	"context"
	"time"
)

// Store is the shared key-value backend behind the rate limiters and the
// listing cache. Implementations must be safe for concurrent use.
type Store interface {
	// Increment atomically increments the counter for the given key and
	// refreshes its expiration, returning the new value. Missing keys start
	// at zero.
	Increment(ctx context.Context, key string, expiration time.Duration) (int64, error)

	// Get retrieves the value for the given key. Missing or expired keys
	// yield an empty string and no error.
	Get(ctx context.Context, key string) (string, error)

	// Set stores the value for the given key. A non-positive expiration
	// means the key does not expire.
	Set(ctx context.Context, key string, value string, expiration time.Duration) error

	// Delete removes the key from storage.
	Delete(ctx context.Context, key string) error

	// Ping checks if the storage is accessible.
	Ping(ctx context.Context) error

	// Close closes the storage connection.
	Close() error
}
