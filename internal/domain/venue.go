package domain

import "context"

// QuoteRequest describes the swap the router should price.
type QuoteRequest struct {
	TokenIn  string
	TokenOut string
	AmountIn float64
	Slippage float64
}

// SubmitResult reports the outcome of a swap submission.
type SubmitResult struct {
	Ok           bool
	TxSignature  string
	ErrorMessage string
}

// Router is the liquidity-routing capability. BestQuote queries however many
// venues the implementation knows about and returns the winner; Submit sends
// the swap to the selected venue. Implementations must honour the context
// deadline on both calls.
type Router interface {
	BestQuote(ctx context.Context, req QuoteRequest) (Quote, error)
	Submit(ctx context.Context, venue Venue, req QuoteRequest, q Quote, wallet string) (SubmitResult, error)
}
