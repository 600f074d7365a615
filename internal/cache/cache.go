package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openpantry/listings/internal/storage"
)

// Cache provides JSON page caching for listing queries.
type Cache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
}

type storeCache struct {
	store storage.Store
}

// New returns a Cache backed by the shared key-value store, so cached pages
// live in Redis when the service runs with the Redis backend and in process
// memory otherwise.
func New(store storage.Store) Cache {
	return &storeCache{store: store}
}

func (c *storeCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.store.Set(ctx, key, string(payload), ttl)
}

func (c *storeCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	payload, err := c.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if payload == "" {
		return false, nil
	}

	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		return false, err
	}

	return true, nil
}

func (c *storeCache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}
