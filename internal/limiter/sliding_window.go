package limiter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openpantry/listings/internal/storage"
	"go.uber.org/zap"
)

// SlidingWindow caps requests per rolling window by tracking individual
// request timestamps. More memory per key than FixedWindow but no burst at
// window boundaries, which is why the inbound middleware uses it for
// per-client throttling.
type SlidingWindow struct {
	store          storage.Store
	maxRequests    int64
	windowDuration time.Duration
	logger         *zap.Logger
}

type slidingWindowState struct {
	Timestamps []int64 `json:"timestamps"` // Unix nanoseconds of admitted requests
}

// NewSlidingWindow creates a sliding-window limiter allowing maxRequests per
// rolling windowDuration.
func NewSlidingWindow(store storage.Store, maxRequests int64, windowDuration time.Duration, logger *zap.Logger) *SlidingWindow {
	return &SlidingWindow{
		store:          store,
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
		logger:         logger,
	}
}

// Allow checks if a request should be allowed under the sliding window.
func (sw *SlidingWindow) Allow(ctx context.Context, key string) (bool, error) {
	stateKey := sw.stateKey(key)
	now := time.Now().UnixNano()

	stateStr, err := sw.store.Get(ctx, stateKey)
	if err != nil {
		sw.logger.Error("failed to get sliding window state", zap.String("key", key), zap.Error(err))
		return true, err // fail open
	}

	var state slidingWindowState
	if stateStr != "" {
		if err := json.Unmarshal([]byte(stateStr), &state); err != nil {
			sw.logger.Warn("failed to parse sliding window state, reinitializing", zap.String("key", stateKey), zap.Error(err))
			state = slidingWindowState{}
		}
	}

	// Drop timestamps that slid out of the window.
	windowStart := now - sw.windowDuration.Nanoseconds()
	recent := state.Timestamps[:0]
	for _, ts := range state.Timestamps {
		if ts > windowStart {
			recent = append(recent, ts)
		}
	}

	allowed := int64(len(recent)) < sw.maxRequests
	if allowed {
		recent = append(recent, now)
	}

	state.Timestamps = recent
	stateJSON, err := json.Marshal(state)
	if err != nil {
		sw.logger.Error("failed to marshal sliding window state", zap.String("key", key), zap.Error(err))
		return true, err // fail open
	}

	if err := sw.store.Set(ctx, stateKey, string(stateJSON), sw.windowDuration+time.Second); err != nil {
		sw.logger.Error("failed to set sliding window state", zap.String("key", key), zap.Error(err))
		return true, err // fail open
	}

	return allowed, nil
}

// Reset clears the sliding window state for a specific key.
func (sw *SlidingWindow) Reset(ctx context.Context, key string) error {
	if err := sw.store.Delete(ctx, sw.stateKey(key)); err != nil {
		sw.logger.Error("failed to reset sliding window state", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("reset sliding window state: %w", err)
	}
	return nil
}

// Close performs cleanup when the rate limiter is no longer needed.
func (sw *SlidingWindow) Close() error {
	return nil
}

func (sw *SlidingWindow) stateKey(key string) string {
	return fmt.Sprintf("limiter:sliding_window:%s", key)
}
