package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avelinsk/swapflow/internal/domain"
)

// Endpoint pairs a venue name with the base URL of its quote API.
type Endpoint struct {
	Venue   domain.Venue
	BaseURL string
}

// Live is a router that queries real venue quote APIs over HTTP. Each venue
// exposes GET /quote and POST /swap. Venues that fail to answer are skipped
// during quoting; Submit targets the selected venue only.
type Live struct {
	endpoints  []Endpoint
	httpClient *http.Client
}

// NewLive creates a Live router for the given venue endpoints.
func NewLive(endpoints []Endpoint) *Live {
	return &Live{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type quoteResponse struct {
	AmountOut   float64  `json:"amount_out"`
	PriceImpact float64  `json:"price_impact"`
	Fee         float64  `json:"fee"`
	Route       []string `json:"route"`
}

type swapRequest struct {
	Wallet    string  `json:"wallet"`
	TokenIn   string  `json:"token_in"`
	TokenOut  string  `json:"token_out"`
	AmountIn  float64 `json:"amount_in"`
	Slippage  float64 `json:"slippage"`
	AmountOut float64 `json:"amount_out"`
}

type swapResponse struct {
	Success      bool   `json:"success"`
	TxSignature  string `json:"tx_signature"`
	ErrorMessage string `json:"error_message"`
}

// BestQuote queries every configured venue and returns the quote with the
// highest output amount. It fails only if no venue returned a usable quote.
func (l *Live) BestQuote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	var best domain.Quote
	var lastErr error

	for _, ep := range l.endpoints {
		q, err := l.fetchQuote(ctx, ep, req)
		if err != nil {
			lastErr = err
			continue
		}
		if best.Venue == "" || q.AmountOut > best.AmountOut {
			best = q
		}
	}

	if best.Venue == "" {
		if lastErr != nil {
			return domain.Quote{}, fmt.Errorf("venue: no quotes available: %w", lastErr)
		}
		return domain.Quote{}, fmt.Errorf("venue: no endpoints configured")
	}
	return best, nil
}

func (l *Live) fetchQuote(ctx context.Context, ep Endpoint, req domain.QuoteRequest) (domain.Quote, error) {
	q := url.Values{}
	q.Set("token_in", req.TokenIn)
	q.Set("token_out", req.TokenOut)
	q.Set("amount_in", strconv.FormatFloat(req.AmountIn, 'f', -1, 64))
	q.Set("slippage", strconv.FormatFloat(req.Slippage, 'f', -1, 64))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.BaseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue: build quote request for %s: %w", ep.Venue, err)
	}

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue: quote %s: %w", ep.Venue, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("venue: quote %s: unexpected status %d", ep.Venue, resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Quote{}, fmt.Errorf("venue: decode quote from %s: %w", ep.Venue, err)
	}

	return domain.Quote{
		Venue:       ep.Venue,
		AmountOut:   body.AmountOut,
		PriceImpact: body.PriceImpact,
		Fee:         body.Fee,
		Route:       body.Route,
	}, nil
}

// Submit sends the swap to the selected venue's /swap endpoint.
func (l *Live) Submit(ctx context.Context, v domain.Venue, req domain.QuoteRequest, quote domain.Quote, wallet string) (domain.SubmitResult, error) {
	var ep *Endpoint
	for i := range l.endpoints {
		if l.endpoints[i].Venue == v {
			ep = &l.endpoints[i]
			break
		}
	}
	if ep == nil {
		return domain.SubmitResult{}, fmt.Errorf("venue: no endpoint for %s", v)
	}

	payload, err := json.Marshal(swapRequest{
		Wallet:    wallet,
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		AmountIn:  req.AmountIn,
		Slippage:  req.Slippage,
		AmountOut: quote.AmountOut,
	})
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("venue: marshal swap request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.BaseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("venue: build swap request for %s: %w", v, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("venue: submit to %s: %w", v, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.SubmitResult{}, fmt.Errorf("venue: submit to %s: unexpected status %d", v, resp.StatusCode)
	}

	var body swapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.SubmitResult{}, fmt.Errorf("venue: decode swap response from %s: %w", v, err)
	}

	return domain.SubmitResult{
		Ok:           body.Success,
		TxSignature:  body.TxSignature,
		ErrorMessage: body.ErrorMessage,
	}, nil
}

// Compile-time interface check.
var _ domain.Router = (*Live)(nil)
