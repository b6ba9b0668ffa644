// Package stub provides a configurable in-memory aggregator for tests.
package stub

import (
	"context"
	"math/big"
	"sync"
	"time"

	"evm-swap-bot/internal/aggregator"
	"evm-swap-bot/internal/domain"
)

// Aggregator answers quote and swap-build calls from preset fields.
// Configure the exported fields before use; methods fill in request
// details the fields leave zero.
type Aggregator struct {
	mu sync.Mutex

	name string

	// Quote template returned by GetQuote when QuoteErr is nil.
	Quote    domain.Quote
	QuoteErr error

	// Tx is returned by BuildSwapTransaction when TxErr is nil.
	Tx    aggregator.SwapTransaction
	TxErr error

	// Delay postpones every answer, for timeout tests.
	Delay time.Duration

	quoteCalls int
	buildCalls int
}

// Compile-time interface check.
var _ aggregator.Aggregator = (*Aggregator)(nil)

// New creates a stub venue with the given name.
func New(name string) *Aggregator {
	return &Aggregator{name: name}
}

// Name returns the configured venue name.
func (a *Aggregator) Name() string { return a.name }

// SetQuote replaces the quote template.
func (a *Aggregator) SetQuote(q domain.Quote) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Quote = q
}

// SetQuoteErr makes GetQuote fail.
func (a *Aggregator) SetQuoteErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.QuoteErr = err
}

// QuoteCalls returns how many times GetQuote ran.
func (a *Aggregator) QuoteCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quoteCalls
}

// BuildCalls returns how many times BuildSwapTransaction ran.
func (a *Aggregator) BuildCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buildCalls
}

func (a *Aggregator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetQuote returns the quote template stamped with request details.
func (a *Aggregator) GetQuote(ctx context.Context, req aggregator.QuoteRequest) (domain.Quote, error) {
	a.mu.Lock()
	a.quoteCalls++
	quote := a.Quote
	quoteErr := a.QuoteErr
	delay := a.Delay
	a.mu.Unlock()

	if err := a.wait(ctx, delay); err != nil {
		return domain.Quote{}, err
	}
	if quoteErr != nil {
		return domain.Quote{}, quoteErr
	}

	quote.Aggregator = a.name
	quote.TokenIn = req.TokenIn
	quote.TokenOut = req.TokenOut
	quote.AmountIn = new(big.Int).Set(req.AmountIn)
	if quote.ExpectedOut == nil {
		quote.ExpectedOut = new(big.Int)
	}
	if quote.Expiry.IsZero() {
		quote.Expiry = time.Now().Add(time.Minute)
	}
	return quote, nil
}

// BuildSwapTransaction returns the preset transaction.
func (a *Aggregator) BuildSwapTransaction(ctx context.Context, req aggregator.QuoteRequest) (aggregator.SwapTransaction, error) {
	a.mu.Lock()
	a.buildCalls++
	tx := a.Tx
	txErr := a.TxErr
	delay := a.Delay
	a.mu.Unlock()

	if err := a.wait(ctx, delay); err != nil {
		return aggregator.SwapTransaction{}, err
	}
	if txErr != nil {
		return aggregator.SwapTransaction{}, txErr
	}

	if tx.Value == nil {
		tx.Value = new(big.Int)
	}
	if tx.Gas == 0 {
		tx.Gas = 250_000
	}
	if tx.MinAmountOut == nil {
		tx.MinAmountOut = new(big.Int)
	}
	return tx, nil
}
