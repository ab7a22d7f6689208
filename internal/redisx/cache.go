package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
)

// StatusCache keeps the last known status of an order for cheap polling.
// Postgres stays the source of truth; a cache miss falls back to it.
type StatusCache struct{ R *redis.Client }

func (c StatusCache) Get(ctx context.Context, orderID string) (json.RawMessage, bool) {
	s, err := c.R.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if err != nil || s == "" {
		return nil, false
	}
	return json.RawMessage(s), true
}

// Set stores the JSON encoding of view as the cached status body.
func (c StatusCache) Set(ctx context.Context, orderID string, view any) error {
	b, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

// Invalidate drops the cached status after a committed change; the next
// read repopulates it from the store.
func (c StatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.R.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}

// Idempotency maps a client Idempotency-Key to the order it created.
type Idempotency struct{ R *redis.Client }

// Claim reserves key for the caller with SET NX. When another request holds
// it, the order id it stored is returned, or "" while that request is still
// running.
func (i Idempotency) Claim(ctx context.Context, key string) (string, bool, error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, key)
	ok, err := i.R.SetNX(ctx, k, idemPending, TTLIdemPending).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	id, err := i.R.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET; the caller may try again
		return "", false, nil
	case err != nil:
		return "", false, err
	case id == idemPending:
		return "", false, nil
	}
	return id, false, nil
}

func (i Idempotency) Remember(ctx context.Context, key, orderID string) error {
	return i.R.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
}

// Forget releases a claim whose request failed, so the client can retry.
func (i Idempotency) Forget(ctx context.Context, key string) error {
	return i.R.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Err()
}

// Dedup records processed event ids per consuming service.
type Dedup struct {
	R       *redis.Client
	Service string
}

func (d Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	ok, err := Exists(ctx, d.R, fmt.Sprintf(KeyDedup, d.Service, eventID))
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return ok, err
}

func (d Dedup) Mark(ctx context.Context, eventID string) error {
	return d.R.Set(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID), "1", TTLDedup).Err()
}
