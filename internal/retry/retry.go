package retry

import (
	"context"
	"math"
	"time"

	"github.com/openpantry/listings/internal/model"
	"go.uber.org/zap"
)

// Policy configures retry behavior for a single operation. Stateless; safe to
// share and copy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultPolicy matches the retry behavior of single-item fetches in the
// mobile clients: three attempts starting at half a second, doubling.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Multiplier:  2.0,
}

// Delay returns the wait before the given retry. The first retry (after
// attempt 1) waits BaseDelay, each following one multiplies by Multiplier.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
}

// Do invokes op, retrying transient failures per the policy. Non-transient
// errors propagate immediately without retrying. On exhaustion the last error
// is returned. Waits honor context cancellation.
func Do[T any](ctx context.Context, p Policy, logger *zap.Logger, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		if !model.IsTransient(err) {
			return zero, err
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		logger.Debug("transient failure, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}
