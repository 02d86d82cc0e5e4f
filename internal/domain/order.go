package domain

import (
	"time"
)

// OrderKind distinguishes market orders from limit orders.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
)

// OrderStatus tracks the order execution lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusRouting   OrderStatus = "routing"
	OrderStatusBuilding  OrderStatus = "building"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusFailed    OrderStatus = "failed"
)

// Terminal reports whether the status is a terminal outcome.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusFailed
}

// transitions encodes the forward-only status graph for a single execution
// attempt. A retried attempt re-enters at pending via Order.ResetForAttempt,
// which is an attempt reset rather than a graph edge.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusRouting, OrderStatusFailed},
	OrderStatusRouting:   {OrderStatusBuilding, OrderStatusFailed},
	OrderStatusBuilding:  {OrderStatusSubmitted, OrderStatusFailed},
	OrderStatusSubmitted: {OrderStatusConfirmed, OrderStatusFailed},
}

// CanTransition reports whether moving from one status to another is allowed
// within a single execution attempt.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Venue identifies a liquidity venue queried by the router.
type Venue string

const (
	VenueRaydium Venue = "raydium"
	VenueMeteora Venue = "meteora"
)

// Quote is a priced execution plan returned by the venue router.
type Quote struct {
	Venue       Venue    `json:"venue"`
	AmountOut   float64  `json:"amount_out"`
	PriceImpact float64  `json:"price_impact"`
	Fee         float64  `json:"fee"`
	Route       []string `json:"route"`
}

// Order is a swap request tracked through its execution lifecycle.
// ID is assigned at admission and never changes; mutable fields are written
// only by the execution engine while a worker owns the order.
type Order struct {
	ID            string      `json:"order_id"`
	Wallet        string      `json:"wallet"`
	TokenIn       string      `json:"token_in"`
	TokenOut      string      `json:"token_out"`
	AmountIn      float64     `json:"amount_in"`
	Kind          OrderKind   `json:"kind"`
	Slippage      float64     `json:"slippage"`
	LimitPrice    float64     `json:"limit_price,omitempty"`
	Status        OrderStatus `json:"status"`
	SelectedVenue Venue       `json:"selected_venue,omitempty"`
	Quote         *Quote      `json:"quote,omitempty"`
	TxSignature   string      `json:"tx_signature,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	Attempts      int         `json:"attempts"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Validate checks the admission-time constraints on a submitted order.
func (o Order) Validate() error {
	if o.Wallet == "" || o.TokenIn == "" || o.TokenOut == "" {
		return ErrInvalidOrder
	}
	if o.AmountIn <= 0 {
		return ErrInvalidOrder
	}
	if o.Slippage < 0 || o.Slippage > 100 {
		return ErrInvalidOrder
	}
	switch o.Kind {
	case OrderKindMarket:
	case OrderKindLimit:
		if o.LimitPrice <= 0 {
			return ErrInvalidOrder
		}
	default:
		return ErrInvalidOrder
	}
	return nil
}

// ResetForAttempt clears per-attempt execution state so a retried job
// restarts the full status sequence from pending.
func (o *Order) ResetForAttempt(attempt int, now time.Time) {
	o.Status = OrderStatusPending
	o.SelectedVenue = ""
	o.Quote = nil
	o.TxSignature = ""
	o.ErrorMessage = ""
	if attempt > o.Attempts {
		o.Attempts = attempt
	}
	o.UpdatedAt = now
}
