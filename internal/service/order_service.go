// Package service implements the application services sitting between the
// HTTP layer and the execution pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avelinsk/swapflow/internal/domain"
	"github.com/avelinsk/swapflow/internal/queue"
)

// Enqueuer is the admission half of the job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, o domain.Order) error
	Metrics() queue.Metrics
}

// OrderRequest is a validated submission from the admission boundary.
type OrderRequest struct {
	Wallet     string  `json:"wallet"`
	TokenIn    string  `json:"token_in"`
	TokenOut   string  `json:"token_out"`
	AmountIn   float64 `json:"amount_in"`
	Kind       string  `json:"kind"`
	Slippage   float64 `json:"slippage"`
	LimitPrice float64 `json:"limit_price,omitempty"`
}

// OrderService admits orders into the pipeline and serves status lookups.
type OrderService struct {
	store  domain.OrderStore
	cache  domain.ActiveOrderCache
	queue  Enqueuer
	logger *slog.Logger
}

// NewOrderService creates an OrderService with all required dependencies.
func NewOrderService(store domain.OrderStore, cache domain.ActiveOrderCache, q Enqueuer, logger *slog.Logger) *OrderService {
	return &OrderService{
		store:  store,
		cache:  cache,
		queue:  q,
		logger: logger.With(slog.String("component", "order_service")),
	}
}

// Submit admits a new order: assigns its id and initial state, persists the
// pending snapshot to both stores, and enqueues it for execution.
func (s *OrderService) Submit(ctx context.Context, req OrderRequest) (domain.Order, error) {
	now := time.Now().UTC()
	o := domain.Order{
		ID:         uuid.NewString(),
		Wallet:     req.Wallet,
		TokenIn:    req.TokenIn,
		TokenOut:   req.TokenOut,
		AmountIn:   req.AmountIn,
		Kind:       domain.OrderKind(req.Kind),
		Slippage:   req.Slippage,
		LimitPrice: req.LimitPrice,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.Validate(); err != nil {
		return domain.Order{}, err
	}

	if err := s.store.Upsert(ctx, o); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: persist admission: %w", err)
	}
	if err := s.cache.Put(ctx, o); err != nil {
		// The durable row exists; a missing cache entry only slows lookups
		// until the first execution write re-creates it.
		s.logger.WarnContext(ctx, "admission cache write failed",
			slog.String("order_id", o.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.queue.Enqueue(ctx, o); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: enqueue: %w", err)
	}

	s.logger.InfoContext(ctx, "order admitted",
		slog.String("order_id", o.ID),
		slog.String("kind", string(o.Kind)),
		slog.String("pair", o.TokenIn+"/"+o.TokenOut),
	)
	return o, nil
}

// Get returns the current order snapshot, preferring the active cache and
// falling back to the durable store once the order has left the cache.
func (s *OrderService) Get(ctx context.Context, id string) (domain.Order, error) {
	o, err := s.cache.Get(ctx, id)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "cache lookup failed, falling back to store",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}
	return s.store.GetByID(ctx, id)
}

// History returns the durable order history for a wallet, newest first.
func (s *OrderService) History(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.store.ListByWallet(ctx, wallet, opts)
}

// ListActiveIDs enumerates orders currently in flight.
func (s *OrderService) ListActiveIDs(ctx context.Context) ([]string, error) {
	return s.cache.ListActiveIDs(ctx)
}

// Metrics returns the queue's current job accounting.
func (s *OrderService) Metrics() queue.Metrics {
	return s.queue.Metrics()
}
