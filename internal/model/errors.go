package model

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for the non-retryable failure classes. They propagate to the
// caller unchanged: no retry, no fallback.
var (
	ErrNotFound     = errors.New("listing not found")
	ErrUnauthorized = errors.New("upstream rejected credentials")
)

// TransientError marks a failure that is expected to resolve by retrying or by
// switching to the fallback path: timeouts, connection resets, 5xx responses
// and upstream 429s.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for the given operation.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// DecodeError marks a response that was received but did not match the
// expected shape. Distinct from unreachability: the service answered, the
// contract was violated. Never retried, never triggers fallback.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsTransient reports whether err belongs to the retryable failure class.
// Caller-initiated cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
