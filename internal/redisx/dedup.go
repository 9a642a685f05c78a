package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup remembers which event ids a consumer has already applied.
type Dedup struct {
	rdb     *redis.Client
	service string
	ttl     time.Duration
}

func NewDedup(rdb *redis.Client, service string, ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = TTLDedup
	}
	return &Dedup{rdb: rdb, service: service, ttl: ttl}
}

func (d *Dedup) Seen(ctx context.Context, id string) (bool, error) {
	return Exists(ctx, d.rdb, dedupKey(d.service, id))
}

// Mark records id as applied. It returns false if it was already marked.
func (d *Dedup) Mark(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, dedupKey(d.service, id), "1", d.ttl).Result()
}
