package pricing

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Market is the USD view of a token's best trading venue.
type Market struct {
	PriceUSD     decimal.Decimal
	LiquidityUSD decimal.Decimal
	PairAddress  common.Address
	DexID        string
}

// HasLiquidity reports whether the venue carries any tradable depth.
func (m Market) HasLiquidity() bool {
	return m.LiquidityUSD.IsPositive()
}

// Source supplies USD valuations. Tokens without a listed market come
// back as a zero Market, not an error; errors mean the source itself
// failed.
type Source interface {
	// TokenMarket returns the best market for a token by liquidity.
	TokenMarket(ctx context.Context, token common.Address) (Market, error)

	// NativePriceUSD returns the USD price of the chain's native asset.
	NativePriceUSD(ctx context.Context) (decimal.Decimal, error)
}
