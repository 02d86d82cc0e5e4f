package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avelinsk/swapflow/internal/domain"
	"github.com/avelinsk/swapflow/internal/queue"
	"github.com/avelinsk/swapflow/internal/service"
)

type fakeOrderService struct {
	submitErr error
	orders    map[string]domain.Order
}

func (f *fakeOrderService) Submit(ctx context.Context, req service.OrderRequest) (domain.Order, error) {
	if f.submitErr != nil {
		return domain.Order{}, f.submitErr
	}
	return domain.Order{ID: "ord-1", Status: domain.OrderStatusPending, Wallet: req.Wallet}, nil
}

func (f *fakeOrderService) Get(ctx context.Context, id string) (domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderService) History(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders {
		if o.Wallet == wallet {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrderService) ListActiveIDs(ctx context.Context) ([]string, error) {
	return []string{"ord-1"}, nil
}

func (f *fakeOrderService) Metrics() queue.Metrics {
	return queue.Metrics{Waiting: 1, Active: 2, Total: 3}
}

func newTestMux(svc OrderService) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewOrderHandler(svc, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", h.SubmitOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/metrics", h.Metrics)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	return mux
}

func TestSubmitOrderAccepted(t *testing.T) {
	mux := newTestMux(&fakeOrderService{})

	body := `{"wallet":"w1","token_in":"SOL","token_out":"USDC","amount_in":5,"kind":"market","slippage":0.5}`
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID != "ord-1" || resp.Status != "pending" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestSubmitOrderRejectsBadJSON(t *testing.T) {
	mux := newTestMux(&fakeOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitOrderMapsInvalidOrder(t *testing.T) {
	mux := newTestMux(&fakeOrderService{submitErr: domain.ErrInvalidOrder})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"wallet":"w1"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	mux := newTestMux(&fakeOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/api/orders/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetOrderReturnsSnapshot(t *testing.T) {
	svc := &fakeOrderService{orders: map[string]domain.Order{
		"ord-9": {ID: "ord-9", Status: domain.OrderStatusConfirmed, TxSignature: "sig"},
	}}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/ord-9", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var o domain.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if o.ID != "ord-9" || o.Status != domain.OrderStatusConfirmed {
		t.Fatalf("order = %+v", o)
	}
}

func TestMetricsRouteDoesNotShadowLookup(t *testing.T) {
	mux := newTestMux(&fakeOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/api/orders/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var m queue.Metrics
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if m.Total != 3 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestListOrdersRequiresWallet(t *testing.T) {
	mux := newTestMux(&fakeOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
