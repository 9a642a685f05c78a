package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease is a best-effort SET NX PX lock. It only keeps replicas from
// scanning the same rows; it is never what makes an operation correct.
type Lease struct {
	rdb   *redis.Client
	key   string
	owner string
}

func NewLease(rdb *redis.Client, key, owner string) *Lease {
	return &Lease{rdb: rdb, key: key, owner: owner}
}

// Acquire takes the lease for ttl, or reports false when another owner
// holds it. Renewing a lease already held by this owner succeeds.
func (l *Lease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil || ok {
		return ok, err
	}
	holder, err := l.rdb.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if holder != l.owner {
		return false, nil
	}
	return true, l.rdb.PExpire(ctx, l.key, ttl).Err()
}
