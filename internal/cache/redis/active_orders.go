package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avelinsk/swapflow/internal/domain"
)

const defaultOrderTTL = time.Hour

// ActiveOrderCache implements domain.ActiveOrderCache using JSON order
// snapshots with a per-write TTL refresh and a set-type index of in-flight
// order IDs.
//
// Key schema:
//
//	order:{id}    - JSON snapshot of the order, TTL-bounded
//	active_orders - set of order IDs currently in flight
type ActiveOrderCache struct {
	rdb *redis.Client
	ttl time.Duration
}

const activeSetKey = "active_orders"

func orderKey(id string) string { return "order:" + id }

// NewActiveOrderCache creates an ActiveOrderCache backed by the given Client.
// A non-positive ttl falls back to one hour.
func NewActiveOrderCache(c *Client, ttl time.Duration) *ActiveOrderCache {
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}
	return &ActiveOrderCache{rdb: c.Underlying(), ttl: ttl}
}

// Put stores the order snapshot, refreshing its TTL, and adds the order ID to
// the active set.
func (ac *ActiveOrderCache) Put(ctx context.Context, o domain.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("redis: marshal order %s: %w", o.ID, err)
	}

	pipe := ac.rdb.TxPipeline()
	pipe.Set(ctx, orderKey(o.ID), data, ac.ttl)
	pipe.SAdd(ctx, activeSetKey, o.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put order %s: %w", o.ID, err)
	}
	return nil
}

// Get retrieves an order snapshot by ID. It returns domain.ErrNotFound when
// the entry does not exist or has expired.
func (ac *ActiveOrderCache) Get(ctx context.Context, id string) (domain.Order, error) {
	data, err := ac.rdb.Get(ctx, orderKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("redis: get order %s: %w", id, err)
	}

	var o domain.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return domain.Order{}, fmt.Errorf("redis: unmarshal order %s: %w", id, err)
	}
	return o, nil
}

// Remove deletes the order snapshot and drops the ID from the active set.
func (ac *ActiveOrderCache) Remove(ctx context.Context, id string) error {
	pipe := ac.rdb.TxPipeline()
	pipe.Del(ctx, orderKey(id))
	pipe.SRem(ctx, activeSetKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: remove order %s: %w", id, err)
	}
	return nil
}

// ListActiveIDs returns the IDs of all in-flight orders. Entries whose
// snapshot has expired via TTL may still appear until their next Remove.
func (ac *ActiveOrderCache) ListActiveIDs(ctx context.Context) ([]string, error) {
	ids, err := ac.rdb.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list active orders: %w", err)
	}
	return ids, nil
}

// Compile-time interface check.
var _ domain.ActiveOrderCache = (*ActiveOrderCache)(nil)
