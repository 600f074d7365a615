package limiter

import (
	"context"
	"errors"
)

// ErrLimitExceeded is returned by TryAcquire when the quota for the current
// window is exhausted and the limiter is configured to fail fast.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Limiter is the check-only interface used by the inbound HTTP middleware.
//
// On storage errors implementations return (true, err): the caller proceeds
// rather than turning a storage outage into a request outage.
type Limiter interface {
	// Allow reports whether one request for key fits in the current window,
	// consuming a unit when it does.
	Allow(ctx context.Context, key string) (bool, error)

	// Reset clears the state for a specific key.
	Reset(ctx context.Context, key string) error

	// Close performs cleanup when the rate limiter is no longer needed.
	Close() error
}
