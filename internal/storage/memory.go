package storage

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore implements Store with process-local storage. Suitable for a
// single replica or for tests; quota state is not shared across processes.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string]*memoryValue
	stopChan chan struct{}
	stopOnce sync.Once
}

type memoryValue struct {
	value      string
	expiration time.Time
}

// NewMemoryStore creates a new in-memory store and starts a background
// sweeper that removes expired keys.
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		data:     make(map[string]*memoryValue),
		stopChan: make(chan struct{}),
	}

	go ms.sweepExpired()

	return ms
}

func (ms *MemoryStore) sweepExpired() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.removeExpired()
		case <-ms.stopChan:
			return
		}
	}
}

func (ms *MemoryStore) removeExpired() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for key, val := range ms.data {
		if !val.expiration.IsZero() && val.expiration.Before(now) {
			delete(ms.data, key)
		}
	}
}

// Increment atomically increments the counter for the given key.
func (ms *MemoryStore) Increment(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var current int64
	if val, exists := ms.data[key]; exists && !ms.expired(val) {
		if parsed, err := strconv.ParseInt(val.value, 10, 64); err == nil {
			current = parsed
		}
	}

	current++
	ms.data[key] = &memoryValue{
		value:      strconv.FormatInt(current, 10),
		expiration: expireAt(expiration),
	}

	return current, nil
}

// Get retrieves the current value for the given key.
func (ms *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	val, exists := ms.data[key]
	if !exists || ms.expired(val) {
		return "", nil
	}

	return val.value, nil
}

// Set stores the value for the given key.
func (ms *MemoryStore) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.data[key] = &memoryValue{
		value:      value,
		expiration: expireAt(expiration),
	}

	return nil
}

// Delete removes the key from storage.
func (ms *MemoryStore) Delete(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.data, key)
	return nil
}

// Ping always succeeds for in-memory storage.
func (ms *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the background sweeper.
func (ms *MemoryStore) Close() error {
	ms.stopOnce.Do(func() {
		close(ms.stopChan)
	})
	return nil
}

func (ms *MemoryStore) expired(val *memoryValue) bool {
	return !val.expiration.IsZero() && val.expiration.Before(time.Now())
}

func expireAt(expiration time.Duration) time.Time {
	if expiration <= 0 {
		return time.Time{}
	}
	return time.Now().Add(expiration)
}
