// Package engine implements the order execution state machine. For one order
// it requests a quote, validates limit constraints, submits the swap, and
// drives every status transition, persisting to the durable store and active
// cache and emitting a status event at each step.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelinsk/swapflow/internal/domain"
)

// EventsChannel is the signal-bus channel carrying serialized StatusEvents.
const EventsChannel = "orders"

// Notifier receives an alert when an order fails with no retries remaining.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the engine's execution parameters.
type Config struct {
	CallTimeout time.Duration // bound on each router call
	MaxAttempts int           // used to detect exhausted retries for alerting
}

// Engine executes one order at a time per call. It owns no shared mutable
// state; each Execute call operates exclusively on its own order copy, so a
// single Engine is safe for use by every queue worker concurrently.
type Engine struct {
	cfg      Config
	router   domain.Router
	store    domain.OrderStore
	cache    domain.ActiveOrderCache
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger
}

// New creates an Engine. notifier may be nil.
func New(cfg Config, router domain.Router, store domain.OrderStore, cache domain.ActiveOrderCache, bus domain.SignalBus, notifier Notifier, logger *slog.Logger) *Engine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Engine{
		cfg:      cfg,
		router:   router,
		store:    store,
		cache:    cache,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// Execute runs the full status sequence for one attempt. Any error funnels
// into the failed transition before being returned, so the queue can apply
// its retry policy; a new attempt restarts the sequence from pending.
func (e *Engine) Execute(ctx context.Context, o domain.Order, attempt int) error {
	o.ResetForAttempt(attempt, time.Now().UTC())

	// Re-assert pending: the first write of every attempt.
	if err := e.writeAndBroadcast(ctx, &o); err != nil {
		return err
	}

	if err := e.run(ctx, &o); err != nil {
		return e.fail(ctx, &o, err)
	}
	return nil
}

// run drives the happy path; it returns the cause on any failure and leaves
// the terminal failed transition to the caller.
func (e *Engine) run(ctx context.Context, o *domain.Order) error {
	if err := e.setStatus(ctx, o, domain.OrderStatusRouting); err != nil {
		return err
	}

	req := domain.QuoteRequest{
		TokenIn:  o.TokenIn,
		TokenOut: o.TokenOut,
		AmountIn: o.AmountIn,
		Slippage: o.Slippage,
	}

	quote, err := e.bestQuote(ctx, req)
	if err != nil {
		return fmt.Errorf("routing: %w", err)
	}

	o.Quote = &quote
	o.SelectedVenue = quote.Venue
	o.UpdatedAt = time.Now().UTC()
	if err := e.writeAndBroadcast(ctx, o); err != nil {
		return err
	}

	// Limit orders: reject when the quoted execution price is below the
	// caller's floor. Deterministic within this attempt; a later attempt
	// re-quotes and may pass.
	if o.Kind == domain.OrderKindLimit && o.LimitPrice > 0 {
		price := quote.AmountOut / o.AmountIn
		if price < o.LimitPrice {
			return fmt.Errorf("%w: required %v, got %v", domain.ErrLimitNotMet, o.LimitPrice, price)
		}
	}

	if err := e.setStatus(ctx, o, domain.OrderStatusBuilding); err != nil {
		return err
	}

	if err := e.setStatus(ctx, o, domain.OrderStatusSubmitted); err != nil {
		return err
	}

	res, err := e.submit(ctx, o.SelectedVenue, req, quote, o.Wallet)
	if err != nil {
		return fmt.Errorf("submission: %w", err)
	}
	if !res.Ok {
		msg := res.ErrorMessage
		if msg == "" {
			msg = "transaction failed"
		}
		return fmt.Errorf("submission: %s", msg)
	}

	o.TxSignature = res.TxSignature
	if err := e.setStatus(ctx, o, domain.OrderStatusConfirmed); err != nil {
		return err
	}

	if err := e.cache.Remove(ctx, o.ID); err != nil {
		// Terminal store row is already durable; a leftover cache entry
		// self-heals via TTL.
		e.logger.WarnContext(ctx, "failed to evict confirmed order from cache",
			slog.String("order_id", o.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (e *Engine) bestQuote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return e.router.BestQuote(callCtx, req)
}

func (e *Engine) submit(ctx context.Context, v domain.Venue, req domain.QuoteRequest, q domain.Quote, wallet string) (domain.SubmitResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return e.router.Submit(callCtx, v, req, q, wallet)
}

// fail drives the terminal failed transition, evicts the cache entry, alerts
// when no retries remain, and returns the original cause so the queue can
// apply its retry policy.
func (e *Engine) fail(ctx context.Context, o *domain.Order, cause error) error {
	o.ErrorMessage = cause.Error()
	if err := e.setStatus(ctx, o, domain.OrderStatusFailed); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist terminal failure",
			slog.String("order_id", o.ID),
			slog.String("error", err.Error()),
		)
		// Surface the persistence error: the attempt must be retried so the
		// terminal record is eventually durable.
		return err
	}

	if err := e.cache.Remove(ctx, o.ID); err != nil {
		e.logger.WarnContext(ctx, "failed to evict failed order from cache",
			slog.String("order_id", o.ID),
			slog.String("error", err.Error()),
		)
	}

	exhausted := o.Attempts+1 >= e.cfg.MaxAttempts
	if e.notifier != nil && (exhausted || isPermanent(cause)) {
		_ = e.notifier.Notify(ctx, "order_failed",
			fmt.Sprintf("Order %s failed", o.ID),
			o.ErrorMessage,
		)
	}

	return cause
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrLimitNotMet)
}

// setStatus performs one atomic transition: mutate the in-memory order,
// write both stores, then broadcast. An invalid transition is a programming
// error and is reported rather than applied.
func (e *Engine) setStatus(ctx context.Context, o *domain.Order, status domain.OrderStatus) error {
	if !domain.CanTransition(o.Status, status) {
		return fmt.Errorf("engine: illegal transition %s -> %s for order %s", o.Status, status, o.ID)
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	return e.writeAndBroadcast(ctx, o)
}

// writeAndBroadcast persists the order to both stores and publishes the
// status event. The durable write retries once in place, then the error
// surfaces so the queue's retry path re-asserts the state. Broadcast is
// best-effort and never fails the transition.
func (e *Engine) writeAndBroadcast(ctx context.Context, o *domain.Order) error {
	if err := retryOnce(func() error { return e.store.Upsert(ctx, *o) }); err != nil {
		return fmt.Errorf("engine: durable write for order %s: %w", o.ID, err)
	}
	if err := retryOnce(func() error { return e.cache.Put(ctx, *o) }); err != nil {
		return fmt.Errorf("engine: cache write for order %s: %w", o.ID, err)
	}

	e.publish(ctx, *o)
	return nil
}

func (e *Engine) publish(ctx context.Context, o domain.Order) {
	payload, err := json.Marshal(domain.EventForOrder(o))
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to serialize status event",
			slog.String("order_id", o.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := e.bus.Publish(ctx, EventsChannel, payload); err != nil {
		e.logger.WarnContext(ctx, "failed to publish status event",
			slog.String("order_id", o.ID),
			slog.String("status", string(o.Status)),
			slog.String("error", err.Error()),
		)
	}
}

func retryOnce(fn func() error) error {
	if err := fn(); err != nil {
		return fn()
	}
	return nil
}
