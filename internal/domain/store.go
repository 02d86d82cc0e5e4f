package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// OrderStore is the durable, authoritative record of every order. Upsert is
// idempotent (last-write-wins on the full row) so duplicate writes from
// retried attempts cause no corruption. Rows are never deleted.
type OrderStore interface {
	Upsert(ctx context.Context, o Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]Order, error)
	ListByStatus(ctx context.Context, status OrderStatus, opts ListOpts) ([]Order, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]Order, error)
}
