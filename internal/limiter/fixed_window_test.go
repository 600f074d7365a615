package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openpantry/listings/internal/storage"
	"go.uber.org/zap"
)

// alignToWindow sleeps until just after a window boundary so short-window
// tests do not straddle one.
func alignToWindow(window time.Duration) {
	elapsed := time.Now().UnixNano() % window.Nanoseconds()
	time.Sleep(time.Duration(window.Nanoseconds()-elapsed) + 5*time.Millisecond)
}

func TestFixedWindowAllowWithinQuota(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	fw := NewFixedWindow(store, 5, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := fw.Allow(ctx, "outbound")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	allowed, err := fw.Allow(ctx, "outbound")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Errorf("request 6 should be denied (quota exhausted)")
	}
}

func TestFixedWindowResetsAtBoundary(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	window := 200 * time.Millisecond
	fw := NewFixedWindow(store, 2, window, zap.NewNop())
	ctx := context.Background()

	alignToWindow(window)

	for i := 0; i < 2; i++ {
		allowed, err := fw.Allow(ctx, "outbound")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Errorf("request %d should be allowed in first window", i+1)
		}
	}

	allowed, err := fw.Allow(ctx, "outbound")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Errorf("3rd request should be denied in first window")
	}

	time.Sleep(window)

	allowed, err = fw.Allow(ctx, "outbound")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("first request in new window should be allowed")
	}
}

func TestFixedWindowNoOverAdmissionUnderConcurrency(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	fw := NewFixedWindow(store, 10, time.Minute, zap.NewNop())
	ctx := context.Background()

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := fw.Allow(ctx, "shared")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	if admitted != 10 {
		t.Errorf("expected exactly 10 admissions, got %d", admitted)
	}
}

func TestFixedWindowAcquireBlocksUntilReset(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	window := 200 * time.Millisecond
	fw := NewFixedWindow(store, 1, window, zap.NewNop())
	ctx := context.Background()

	alignToWindow(window)

	if err := fw.Acquire(ctx, "outbound"); err != nil {
		t.Fatalf("first acquire should succeed immediately: %v", err)
	}

	start := time.Now()
	if err := fw.Acquire(ctx, "outbound"); err != nil {
		t.Fatalf("second acquire should succeed after the window resets: %v", err)
	}
	waited := time.Since(start)

	if waited < 50*time.Millisecond {
		t.Errorf("second acquire should have waited for the window boundary, waited only %v", waited)
	}
	if waited > 2*window {
		t.Errorf("second acquire waited too long: %v", waited)
	}
}

func TestFixedWindowAcquireHonorsCancellation(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	fw := NewFixedWindow(store, 1, time.Minute, zap.NewNop())

	if err := fw.Acquire(context.Background(), "outbound"); err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := fw.Acquire(ctx, "outbound")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}

func TestFixedWindowTryAcquireFailsFast(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	fw := NewFixedWindow(store, 1, time.Minute, zap.NewNop())
	ctx := context.Background()

	if err := fw.TryAcquire(ctx, "outbound"); err != nil {
		t.Fatalf("first try-acquire should succeed: %v", err)
	}

	err := fw.TryAcquire(ctx, "outbound")
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestFixedWindowKeysAreIsolated(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	fw := NewFixedWindow(store, 1, time.Minute, zap.NewNop())
	ctx := context.Background()

	if allowed, _ := fw.Allow(ctx, "key1"); !allowed {
		t.Errorf("key1 first request should be allowed")
	}
	if allowed, _ := fw.Allow(ctx, "key1"); allowed {
		t.Errorf("key1 second request should be denied")
	}
	if allowed, _ := fw.Allow(ctx, "key2"); !allowed {
		t.Errorf("key2 should have its own quota")
	}
}
