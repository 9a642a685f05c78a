package redisx

import (
	"fmt"
	"time"
)

const (
	// Place-order idempotency: idem:order:create:{customer_id}:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"
	// Claimed while the first request with a key is still running.
	KeyIdemOrderLock = "idem:order:lock:%s:%s"

	// order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Held by the replica running the current expiry sweep.
	KeySweepLease = "lease:sweeper"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func idemKey(customerID, key string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, customerID, key)
}

func idemLockKey(customerID, key string) string {
	return fmt.Sprintf(KeyIdemOrderLock, customerID, key)
}

func statusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }

func dedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }
