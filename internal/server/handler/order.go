package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/avelinsk/swapflow/internal/domain"
	"github.com/avelinsk/swapflow/internal/queue"
	"github.com/avelinsk/swapflow/internal/service"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	Submit(ctx context.Context, req service.OrderRequest) (domain.Order, error)
	Get(ctx context.Context, id string) (domain.Order, error)
	History(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
	Metrics() queue.Metrics
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// submitResponse acknowledges an accepted order.
type submitResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// SubmitOrder admits a new swap order from a JSON body.
// POST /api/orders
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req service.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	o, err := h.orders.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrder) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, domain.ErrJobExists) {
			writeError(w, http.StatusConflict, "order already queued")
			return
		}
		if errors.Is(err, domain.ErrQueueClosed) {
			writeError(w, http.StatusServiceUnavailable, "not accepting orders")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: submit order failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit order")
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		OrderID: o.ID,
		Status:  string(o.Status),
	})
}

// GetOrder returns the current snapshot of a single order.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch order")
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// listOrdersResponse wraps the order history response.
type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListOrders returns the durable order history for a wallet.
// GET /api/orders?wallet=...&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter required")
		return
	}

	orders, err := h.orders.History(r.Context(), wallet, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// ListActive returns the ids of all orders currently in flight.
// GET /api/orders/active
func (h *OrderHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	ids, err := h.orders.ListActiveIDs(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list active orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list active orders")
		return
	}

	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"order_ids": ids})
}

// Metrics returns the queue's current job accounting.
// GET /api/orders/metrics
func (h *OrderHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orders.Metrics())
}
