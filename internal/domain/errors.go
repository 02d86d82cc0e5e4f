package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidOrder = errors.New("invalid order parameters")
	ErrJobExists    = errors.New("job already enqueued for order")
	ErrQueueClosed  = errors.New("queue closed")
	ErrLimitNotMet  = errors.New("limit price not met")
	ErrRateLimited  = errors.New("rate limited")
)
