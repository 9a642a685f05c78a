package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/redis/go-redis/v9"
)

type CachedStatus struct {
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusCache keeps the last known status of each order for cheap polling.
// The database stays authoritative; a miss means "ask the store".
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatusCache(rdb *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = TTLStatusCache
	}
	return &StatusCache{rdb: rdb, ttl: ttl}
}

func (c *StatusCache) Set(ctx context.Context, orderID string, st CachedStatus) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statusKey(orderID), b, c.ttl).Err()
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (CachedStatus, bool, error) {
	b, err := c.rdb.Get(ctx, statusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedStatus{}, false, nil
	}
	if err != nil {
		return CachedStatus{}, false, err
	}
	var st CachedStatus
	if err := json.Unmarshal(b, &st); err != nil {
		// Corrupt entries are treated as a miss and overwritten later.
		return CachedStatus{}, false, nil
	}
	return st, true, nil
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, statusKey(orderID)).Err()
}

// Publish refreshes the cache from a lifecycle event, so the API can keep
// the cache warm without waiting for the worker.
func (c *StatusCache) Publish(ctx context.Context, ev orders.Envelope) error {
	orderID, st, ok := orders.StatusOf(ev)
	if !ok {
		return nil
	}
	return c.Set(ctx, orderID, CachedStatus{Status: st, UpdatedAt: ev.OccurredAt})
}
