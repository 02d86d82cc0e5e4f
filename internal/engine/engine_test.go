package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avelinsk/swapflow/internal/domain"
)

// --- fakes ---

type memStore struct {
	mu     sync.Mutex
	rows   map[string]domain.Order
	failsN int // fail this many Upserts before succeeding
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]domain.Order)}
}

func (s *memStore) Upsert(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failsN > 0 {
		s.failsN--
		return errors.New("store unavailable")
	}
	s.rows[o.ID] = o
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.rows[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *memStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}

func (s *memStore) ListByStatus(ctx context.Context, status domain.OrderStatus, opts domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}

func (s *memStore) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	return nil, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]domain.Order
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]domain.Order)}
}

func (c *memCache) Put(ctx context.Context, o domain.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[o.ID] = o
	return nil
}

func (c *memCache) Get(ctx context.Context, id string) (domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.entries[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (c *memCache) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *memCache) ListActiveIDs(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids, nil
}

type memBus struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	var ev domain.StatusEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *memBus) statuses() []domain.OrderStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.OrderStatus, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Status
	}
	return out
}

type fakeRouter struct {
	quote     domain.Quote
	quoteErr  error
	submit    domain.SubmitResult
	submitErr error
}

func (r *fakeRouter) BestQuote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	if r.quoteErr != nil {
		return domain.Quote{}, r.quoteErr
	}
	return r.quote, nil
}

func (r *fakeRouter) Submit(ctx context.Context, v domain.Venue, req domain.QuoteRequest, q domain.Quote, wallet string) (domain.SubmitResult, error) {
	if r.submitErr != nil {
		return domain.SubmitResult{}, r.submitErr
	}
	return r.submit, nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func marketOrder(id string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:        id,
		Wallet:    "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		TokenIn:   "SOL",
		TokenOut:  "USDC",
		AmountIn:  1.5,
		Kind:      domain.OrderKindMarket,
		Slippage:  0.5,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newHarness(router domain.Router) (*Engine, *memStore, *memCache, *memBus) {
	store := newMemStore()
	cache := newMemCache()
	bus := &memBus{}
	e := New(Config{CallTimeout: time.Second, MaxAttempts: 3}, router, store, cache, bus, nil, discardLogger())
	return e, store, cache, bus
}

func equalStatuses(a, b []domain.OrderStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- tests ---

func TestExecuteConfirmsMarketOrder(t *testing.T) {
	router := &fakeRouter{
		quote:  domain.Quote{Venue: domain.VenueRaydium, AmountOut: 2.2, Fee: 0.004, Route: []string{"SOL", "USDC"}},
		submit: domain.SubmitResult{Ok: true, TxSignature: strings.Repeat("x", 88)},
	}
	e, store, cache, bus := newHarness(router)

	o := marketOrder("o1")
	if err := e.Execute(context.Background(), o, 0); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusRouting,
		domain.OrderStatusRouting, // re-published with the selected quote
		domain.OrderStatusBuilding,
		domain.OrderStatusSubmitted,
		domain.OrderStatusConfirmed,
	}
	if got := bus.statuses(); !equalStatuses(got, want) {
		t.Errorf("event statuses = %v, want %v", got, want)
	}

	row, err := store.GetByID(context.Background(), "o1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Status != domain.OrderStatusConfirmed {
		t.Errorf("durable status = %s, want confirmed", row.Status)
	}
	if row.TxSignature == "" {
		t.Error("confirmed order must carry a tx signature")
	}
	if row.SelectedVenue != domain.VenueRaydium || row.Quote == nil {
		t.Error("quote and selected venue must be persisted")
	}

	if ids, _ := cache.ListActiveIDs(context.Background()); len(ids) != 0 {
		t.Errorf("active cache should be empty after confirm, has %v", ids)
	}
}

func TestExecuteLimitNotMet(t *testing.T) {
	router := &fakeRouter{
		quote:  domain.Quote{Venue: domain.VenueMeteora, AmountOut: 1.0},
		submit: domain.SubmitResult{Ok: true, TxSignature: "sig"},
	}
	e, store, cache, bus := newHarness(router)

	o := marketOrder("o2")
	o.Kind = domain.OrderKindLimit
	o.LimitPrice = 5.0 // quoted price is 1.0/1.5, far below

	err := e.Execute(context.Background(), o, 0)
	if !errors.Is(err, domain.ErrLimitNotMet) {
		t.Fatalf("err = %v, want ErrLimitNotMet", err)
	}

	for _, s := range bus.statuses() {
		if s == domain.OrderStatusBuilding || s == domain.OrderStatusSubmitted {
			t.Fatalf("limit failure must not reach %s", s)
		}
	}

	row, _ := store.GetByID(context.Background(), "o2")
	if row.Status != domain.OrderStatusFailed {
		t.Errorf("durable status = %s, want failed", row.Status)
	}
	if !strings.Contains(strings.ToLower(row.ErrorMessage), "limit") {
		t.Errorf("error message %q should reference the limit", row.ErrorMessage)
	}
	if ids, _ := cache.ListActiveIDs(context.Background()); len(ids) != 0 {
		t.Error("failed order must be evicted from the active cache")
	}
}

func TestExecuteSubmissionFailure(t *testing.T) {
	router := &fakeRouter{
		quote:  domain.Quote{Venue: domain.VenueRaydium, AmountOut: 2.2},
		submit: domain.SubmitResult{Ok: false, ErrorMessage: "raydium execution failed"},
	}
	e, store, cache, _ := newHarness(router)

	err := e.Execute(context.Background(), marketOrder("o3"), 0)
	if err == nil {
		t.Fatal("expected error to propagate for queue retry")
	}

	row, _ := store.GetByID(context.Background(), "o3")
	if row.Status != domain.OrderStatusFailed {
		t.Errorf("durable status = %s, want failed", row.Status)
	}
	if !strings.Contains(row.ErrorMessage, "raydium execution failed") {
		t.Errorf("error message %q should carry the submission cause", row.ErrorMessage)
	}
	if ids, _ := cache.ListActiveIDs(context.Background()); len(ids) != 0 {
		t.Error("failed order must be evicted from the active cache")
	}
}

func TestExecuteRoutingFailure(t *testing.T) {
	router := &fakeRouter{quoteErr: errors.New("all venues timed out")}
	e, store, _, _ := newHarness(router)

	err := e.Execute(context.Background(), marketOrder("o4"), 1)
	if err == nil {
		t.Fatal("expected error")
	}

	row, _ := store.GetByID(context.Background(), "o4")
	if row.Status != domain.OrderStatusFailed {
		t.Errorf("durable status = %s, want failed", row.Status)
	}
	if row.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", row.Attempts)
	}
}

func TestExecuteRetryRestartsFromPending(t *testing.T) {
	router := &fakeRouter{
		quote:  domain.Quote{Venue: domain.VenueRaydium, AmountOut: 2.2},
		submit: domain.SubmitResult{Ok: true, TxSignature: "sig"},
	}
	e, store, _, bus := newHarness(router)

	o := marketOrder("o5")
	o.Status = domain.OrderStatusFailed
	o.ErrorMessage = "previous attempt failed"
	o.Attempts = 0

	if err := e.Execute(context.Background(), o, 1); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := bus.statuses(); got[0] != domain.OrderStatusPending {
		t.Errorf("retry must re-enter at pending, first event was %s", got[0])
	}

	row, _ := store.GetByID(context.Background(), "o5")
	if row.Status != domain.OrderStatusConfirmed {
		t.Errorf("durable status = %s, want confirmed", row.Status)
	}
	if row.ErrorMessage != "" {
		t.Error("stale error message must be cleared on a new attempt")
	}
	if row.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", row.Attempts)
	}
}

func TestExecuteSurfacesDurableWriteFailure(t *testing.T) {
	router := &fakeRouter{
		quote:  domain.Quote{Venue: domain.VenueRaydium, AmountOut: 2.2},
		submit: domain.SubmitResult{Ok: true, TxSignature: "sig"},
	}
	e, store, _, bus := newHarness(router)
	store.failsN = 2 // both the write and its in-place retry fail

	err := e.Execute(context.Background(), marketOrder("o6"), 0)
	if err == nil {
		t.Fatal("a non-durable transition must surface as a pipeline error")
	}
	if len(bus.statuses()) != 0 {
		t.Error("no event may be broadcast for a transition that was not persisted")
	}
}

func TestExecuteSingleWriteFailureRecovers(t *testing.T) {
	router := &fakeRouter{
		quote:  domain.Quote{Venue: domain.VenueRaydium, AmountOut: 2.2},
		submit: domain.SubmitResult{Ok: true, TxSignature: "sig"},
	}
	e, store, _, _ := newHarness(router)
	store.failsN = 1 // first write fails once, in-place retry succeeds

	if err := e.Execute(context.Background(), marketOrder("o7"), 0); err != nil {
		t.Fatalf("Execute should recover from a single write failure: %v", err)
	}
}

func TestFailureNotificationOnExhaustedRetries(t *testing.T) {
	var notified []string
	notifier := notifierFunc(func(ctx context.Context, event, title, message string) error {
		notified = append(notified, event)
		return nil
	})

	router := &fakeRouter{quoteErr: errors.New("venue down")}
	store := newMemStore()
	e := New(Config{CallTimeout: time.Second, MaxAttempts: 2}, router, store, newMemCache(), &memBus{}, notifier, discardLogger())

	// Attempt 0 of 2: retries remain, no alert.
	_ = e.Execute(context.Background(), marketOrder("o8"), 0)
	if len(notified) != 0 {
		t.Fatal("no alert expected while retries remain")
	}

	// Attempt 1 of 2: final attempt, alert fires.
	_ = e.Execute(context.Background(), marketOrder("o8"), 1)
	if len(notified) != 1 || notified[0] != "order_failed" {
		t.Fatalf("notified = %v, want one order_failed alert", notified)
	}
}

type notifierFunc func(ctx context.Context, event, title, message string) error

func (f notifierFunc) Notify(ctx context.Context, event, title, message string) error {
	return f(ctx, event, title, message)
}

// Guard against fakes drifting from the domain interfaces.
var (
	_ domain.OrderStore       = (*memStore)(nil)
	_ domain.ActiveOrderCache = (*memCache)(nil)
	_ domain.SignalBus        = (*memBus)(nil)
	_ domain.Router           = (*fakeRouter)(nil)
)
