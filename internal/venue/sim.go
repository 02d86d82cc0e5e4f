// Package venue implements the liquidity-routing capability: per-venue quote
// generation, best-quote selection, and swap submission. Two variants exist:
// a Simulated router with a configurable numeric model, and a Live router that
// queries HTTP quote endpoints.
package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/avelinsk/swapflow/internal/domain"
)

// SimConfig tunes the simulated router's numeric model.
type SimConfig struct {
	RaydiumSuccessRate float64
	MeteoraSuccessRate float64
	ProcessingDelay    time.Duration
	QuoteDelay         time.Duration
	Seed               int64 // 0 means time-seeded
}

// Simulated is a two-venue router with a pseudo-random price model. With a
// fixed Seed its output is deterministic, which the tests rely on.
type Simulated struct {
	cfg SimConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a Simulated router from the given config.
func NewSimulated(cfg SimConfig) *Simulated {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.QuoteDelay == 0 {
		cfg.QuoteDelay = 100 * time.Millisecond
	}
	return &Simulated{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// venueModel captures the per-venue pricing parameters.
type venueModel struct {
	venue          domain.Venue
	baseRate       float64
	rateJitter     float64
	maxPriceImpact float64
	feeRate        float64
}

var venueModels = []venueModel{
	{domain.VenueRaydium, 1.5, 0.1, 2.0, 0.003},
	{domain.VenueMeteora, 1.48, 0.1, 1.5, 0.0025},
}

// BestQuote prices the swap on every simulated venue and returns the quote
// with the highest output amount.
func (s *Simulated) BestQuote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	if err := sleepCtx(ctx, s.cfg.QuoteDelay); err != nil {
		return domain.Quote{}, err
	}

	var best domain.Quote
	for _, m := range venueModels {
		q := s.quote(m, req)
		if best.Venue == "" || q.AmountOut > best.AmountOut {
			best = q
		}
	}
	return best, nil
}

func (s *Simulated) quote(m venueModel, req domain.QuoteRequest) domain.Quote {
	s.mu.Lock()
	rate := m.baseRate + (s.rng.Float64()-0.5)*m.rateJitter
	impact := s.rng.Float64() * m.maxPriceImpact
	s.mu.Unlock()

	fee := req.AmountIn * m.feeRate
	return domain.Quote{
		Venue:       m.venue,
		AmountOut:   req.AmountIn*rate - fee,
		PriceImpact: impact,
		Fee:         fee,
		Route:       []string{req.TokenIn, req.TokenOut},
	}
}

// Submit simulates transaction assembly and submission. The outcome is drawn
// from the configured per-venue success rate.
func (s *Simulated) Submit(ctx context.Context, v domain.Venue, req domain.QuoteRequest, q domain.Quote, wallet string) (domain.SubmitResult, error) {
	if err := sleepCtx(ctx, s.cfg.ProcessingDelay); err != nil {
		return domain.SubmitResult{}, err
	}

	rate := s.cfg.RaydiumSuccessRate
	if v == domain.VenueMeteora {
		rate = s.cfg.MeteoraSuccessRate
	}

	s.mu.Lock()
	ok := s.rng.Float64() < rate
	sig := s.signature()
	s.mu.Unlock()

	if !ok {
		return domain.SubmitResult{
			Ok:           false,
			ErrorMessage: fmt.Sprintf("%s execution failed: simulated network error", v),
		}, nil
	}
	return domain.SubmitResult{Ok: true, TxSignature: sig}, nil
}

const sigChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// signature generates an 88-character synthetic transaction signature.
// Callers must hold s.mu.
func (s *Simulated) signature() string {
	buf := make([]byte, 88)
	for i := range buf {
		buf[i] = sigChars[s.rng.Intn(len(sigChars))]
	}
	return string(buf)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Compile-time interface check.
var _ domain.Router = (*Simulated)(nil)
