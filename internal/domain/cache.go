package domain

import (
	"context"
	"time"
)

// ActiveOrderCache is the ephemeral index of orders still in flight. Entries
// carry a TTL refreshed on every write; membership in a secondary active-set
// index allows enumerating all in-flight orders. The cache is a performance
// and liveness aid only; the OrderStore remains canonical.
type ActiveOrderCache interface {
	Put(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	Remove(ctx context.Context, id string) error
	ListActiveIDs(ctx context.Context) ([]string, error)
}

// RateLimiter caps operations per rolling time window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus carries serialized status events between the pipeline and any
// attached broadcast frontends. Delivery is best-effort pub/sub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
