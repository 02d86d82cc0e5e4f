package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/avelinsk/swapflow/internal/domain"
	"github.com/avelinsk/swapflow/internal/queue"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]domain.Order)}
}

func (s *memStore) Upsert(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *memStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Wallet == wallet {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) ListByStatus(ctx context.Context, status domain.OrderStatus, opts domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}

func (s *memStore) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	return nil, nil
}

type memCache struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	putErr error
}

func newMemCache() *memCache {
	return &memCache{orders: make(map[string]domain.Order)}
}

func (c *memCache) Put(ctx context.Context, o domain.Order) error {
	if c.putErr != nil {
		return c.putErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[o.ID] = o
	return nil
}

func (c *memCache) Get(ctx context.Context, id string) (domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (c *memCache) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, id)
	return nil
}

func (c *memCache) ListActiveIDs(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.orders))
	for id := range c.orders {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, o domain.Order) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, o.ID)
	return nil
}

func (q *fakeQueue) Metrics() queue.Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return queue.Metrics{Waiting: len(q.enqueued), Total: len(q.enqueued)}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validRequest() OrderRequest {
	return OrderRequest{
		Wallet:   "wallet-1",
		TokenIn:  "SOL",
		TokenOut: "USDC",
		AmountIn: 10,
		Kind:     "market",
		Slippage: 0.5,
	}
}

func TestSubmitAdmitsOrder(t *testing.T) {
	store := newMemStore()
	cache := newMemCache()
	q := &fakeQueue{}
	svc := NewOrderService(store, cache, q, discardLogger())

	o, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if o.ID == "" {
		t.Fatal("expected an assigned order id")
	}
	if o.Status != domain.OrderStatusPending {
		t.Fatalf("status = %q, want pending", o.Status)
	}
	if o.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", o.Attempts)
	}

	if _, err := store.GetByID(context.Background(), o.ID); err != nil {
		t.Fatalf("durable row missing: %v", err)
	}
	if _, err := cache.Get(context.Background(), o.ID); err != nil {
		t.Fatalf("cache entry missing: %v", err)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != o.ID {
		t.Fatalf("enqueued = %v, want [%s]", q.enqueued, o.ID)
	}
}

func TestSubmitRejectsInvalidOrder(t *testing.T) {
	store := newMemStore()
	q := &fakeQueue{}
	svc := NewOrderService(store, newMemCache(), q, discardLogger())

	req := validRequest()
	req.AmountIn = 0
	if _, err := svc.Submit(context.Background(), req); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("err = %v, want ErrInvalidOrder", err)
	}
	if len(store.orders) != 0 {
		t.Fatal("rejected order must not be persisted")
	}
	if len(q.enqueued) != 0 {
		t.Fatal("rejected order must not be enqueued")
	}
}

func TestSubmitToleratesCacheWriteFailure(t *testing.T) {
	cache := newMemCache()
	cache.putErr = errors.New("redis down")
	q := &fakeQueue{}
	svc := NewOrderService(newMemStore(), cache, q, discardLogger())

	o, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != o.ID {
		t.Fatal("order must still be enqueued when the cache write fails")
	}
}

func TestSubmitSurfacesEnqueueFailure(t *testing.T) {
	q := &fakeQueue{err: domain.ErrQueueClosed}
	svc := NewOrderService(newMemStore(), newMemCache(), q, discardLogger())

	if _, err := svc.Submit(context.Background(), validRequest()); !errors.Is(err, domain.ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestGetPrefersCacheThenStore(t *testing.T) {
	store := newMemStore()
	cache := newMemCache()
	svc := NewOrderService(store, cache, &fakeQueue{}, discardLogger())

	cached := domain.Order{ID: "a", Status: domain.OrderStatusRouting}
	durable := domain.Order{ID: "a", Status: domain.OrderStatusConfirmed}
	cache.orders["a"] = cached
	store.orders["a"] = durable

	got, err := svc.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.OrderStatusRouting {
		t.Fatalf("status = %q, want the cached snapshot", got.Status)
	}

	delete(cache.orders, "a")
	got, err = svc.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("Get after eviction: %v", err)
	}
	if got.Status != domain.OrderStatusConfirmed {
		t.Fatalf("status = %q, want the durable snapshot", got.Status)
	}
}

func TestGetUnknownOrder(t *testing.T) {
	svc := NewOrderService(newMemStore(), newMemCache(), &fakeQueue{}, discardLogger())
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
