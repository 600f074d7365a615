package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/openpantry/listings/internal/storage"
	"go.uber.org/zap"
)

// FixedWindow caps requests per fixed time window. It is the outbound request
// budget of the listing repository: every upstream attempt, primary or
// fallback, draws from the same window.
//
// Windows are aligned to the epoch and state is a single counter per window
// key, updated with the store's atomic increment, so concurrent callers
// cannot over-admit and a Redis-backed store shares the budget across
// replicas.
//
// Exhaustion policy is the caller's choice: Acquire blocks until the next
// window opens (the default for outbound calls), TryAcquire fails fast with
// ErrLimitExceeded.
type FixedWindow struct {
	store          storage.Store
	maxRequests    int64
	windowDuration time.Duration
	logger         *zap.Logger
}

// NewFixedWindow creates a fixed-window limiter allowing maxRequests per
// windowDuration.
func NewFixedWindow(store storage.Store, maxRequests int64, windowDuration time.Duration, logger *zap.Logger) *FixedWindow {
	return &FixedWindow{
		store:          store,
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
		logger:         logger,
	}
}

// Allow checks if a request fits in the current window, consuming a unit when
// it does. Denied attempts do not consume admission slots. On storage errors
// it fails open.
func (fw *FixedWindow) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	count, err := fw.store.Increment(ctx, fw.stateKey(key, now), fw.windowDuration+time.Second)
	if err != nil {
		fw.logger.Error("failed to increment window counter", zap.String("key", key), zap.Error(err))
		return true, err // fail open
	}

	return count <= fw.maxRequests, nil
}

// Acquire blocks until a unit is available or ctx is done. A cancelled wait
// consumes no admission slot, so an abandoned call does not leak quota.
func (fw *FixedWindow) Acquire(ctx context.Context, key string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		allowed, err := fw.Allow(ctx, key)
		if err != nil {
			// Fail open, consistent with Allow: the budget protects the
			// upstream, a broken store should not stall every fetch.
			return nil
		}
		if allowed {
			return nil
		}

		wait := fw.untilNextWindow(time.Now())
		fw.logger.Debug("outbound quota exhausted, waiting for window reset",
			zap.String("key", key),
			zap.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire consumes a unit or returns ErrLimitExceeded immediately.
func (fw *FixedWindow) TryAcquire(ctx context.Context, key string) error {
	allowed, err := fw.Allow(ctx, key)
	if err != nil {
		return nil // fail open
	}
	if !allowed {
		return ErrLimitExceeded
	}
	return nil
}

// Reset clears the current window's state for a specific key.
func (fw *FixedWindow) Reset(ctx context.Context, key string) error {
	if err := fw.store.Delete(ctx, fw.stateKey(key, time.Now())); err != nil {
		fw.logger.Error("failed to reset window counter", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("reset fixed window state: %w", err)
	}
	return nil
}

// Close performs cleanup when the rate limiter is no longer needed.
func (fw *FixedWindow) Close() error {
	return nil
}

func (fw *FixedWindow) stateKey(key string, now time.Time) string {
	window := now.UnixNano() / fw.windowDuration.Nanoseconds()
	return fmt.Sprintf("limiter:fixed_window:%s:%d", key, window)
}

func (fw *FixedWindow) untilNextWindow(now time.Time) time.Duration {
	elapsed := now.UnixNano() % fw.windowDuration.Nanoseconds()
	return time.Duration(fw.windowDuration.Nanoseconds() - elapsed)
}
