package redisx

import "time"

const (
	// Create-order idempotency: idem:order:create:{idempotency_key} -> order_id,
	// or the pending marker while the first request runs
	KeyIdemOrderCreate = "idem:order:create:%s"
	idemPending        = "pending"

	// Order status cache: order_status:{order_id} -> {"order_id", "order_number", "status", "updated_at"}
	KeyOrderStatus = "order_status:%s"

	// Event dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLIdemPending = time.Minute
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
