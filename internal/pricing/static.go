package pricing

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Static serves fixed prices from memory. Used for offline runs and as a
// test double.
type Static struct {
	mu      sync.RWMutex
	markets map[common.Address]Market
	native  decimal.Decimal
}

// Compile-time interface check.
var _ Source = (*Static)(nil)

// NewStatic creates an empty static source with a fixed native price.
func NewStatic(nativePriceUSD decimal.Decimal) *Static {
	return &Static{
		markets: make(map[common.Address]Market),
		native:  nativePriceUSD,
	}
}

// SetMarket installs the market returned for a token.
func (s *Static) SetMarket(token common.Address, m Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[token] = m
}

// TokenMarket returns the configured market, or a zero Market for
// unknown tokens.
func (s *Static) TokenMarket(_ context.Context, token common.Address) (Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markets[token], nil
}

// NativePriceUSD returns the fixed native price.
func (s *Static) NativePriceUSD(context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.native, nil
}
