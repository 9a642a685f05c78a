package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore maps a client's Idempotency-Key to the order it created.
// Keys are scoped per customer so two customers can reuse the same key.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// TryLock claims the key for the first request. A false result means another
// request with the same key got there first.
func (s *IdempotencyStore) TryLock(ctx context.Context, customerID, key string) (bool, error) {
	return s.rdb.SetNX(ctx, idemLockKey(customerID, key), "1", s.ttl).Result()
}

// Unlock lets a retry through after the first attempt failed.
func (s *IdempotencyStore) Unlock(ctx context.Context, customerID, key string) error {
	return s.rdb.Del(ctx, idemLockKey(customerID, key)).Err()
}

func (s *IdempotencyStore) Remember(ctx context.Context, customerID, key, orderID string) error {
	return s.rdb.Set(ctx, idemKey(customerID, key), orderID, s.ttl).Err()
}

func (s *IdempotencyStore) Recall(ctx context.Context, customerID, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, idemKey(customerID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
