package domain

import "time"

// StatusEvent is emitted on every status transition and delivered to live
// subscribers. One event per transition, in per-order chronological order.
type StatusEvent struct {
	OrderID       string      `json:"order_id"`
	Wallet        string      `json:"wallet,omitempty"`
	Status        OrderStatus `json:"status"`
	Timestamp     time.Time   `json:"timestamp"`
	Quote         *Quote      `json:"quote,omitempty"`
	TxSignature   string      `json:"tx_signature,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	SelectedVenue Venue       `json:"selected_venue,omitempty"`
}

// EventForOrder builds the StatusEvent describing the order's current state.
func EventForOrder(o Order) StatusEvent {
	return StatusEvent{
		OrderID:       o.ID,
		Wallet:        o.Wallet,
		Status:        o.Status,
		Timestamp:     o.UpdatedAt,
		Quote:         o.Quote,
		TxSignature:   o.TxSignature,
		ErrorMessage:  o.ErrorMessage,
		SelectedVenue: o.SelectedVenue,
	}
}
