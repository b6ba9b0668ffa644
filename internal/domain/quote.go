package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Quote is one aggregator's answer for a token pair and amount. It is
// produced fresh per quoting round and never mutated; the broker compares
// quotes by net output (expected output minus gas cost in output units).
type Quote struct {
	Aggregator   string          // aggregator name, e.g. "1inch"
	TokenIn      common.Address  // asset being sold
	TokenOut     common.Address  // asset being bought
	AmountIn     *big.Int        // raw input units
	ExpectedOut  *big.Int        // raw output units before gas
	EstimatedGas uint64          // gas limit estimate from the aggregator
	PriceImpact  decimal.Decimal // percent, 0.5 means 0.5%
	Expiry       time.Time       // quote is unusable after this instant
}

// Expired reports whether the quote is stale at the given instant.
func (q Quote) Expired(now time.Time) bool {
	return !q.Expiry.IsZero() && now.After(q.Expiry)
}

// NetOutput converts the quoted gas cost into output-asset units using the
// current gas price (wei) and the native→output conversion rate, and
// subtracts it from the expected output. The result may be negative for
// dust trades on expensive chains.
func (q Quote) NetOutput(gasPrice *big.Int, nativeOutputRate decimal.Decimal) decimal.Decimal {
	out := decimal.NewFromBigInt(q.ExpectedOut, 0)
	if gasPrice == nil || gasPrice.Sign() <= 0 {
		return out
	}
	gasWei := new(big.Int).Mul(new(big.Int).SetUint64(q.EstimatedGas), gasPrice)
	gasCost := decimal.NewFromBigInt(gasWei, 0).Mul(nativeOutputRate)
	return out.Sub(gasCost)
}
