package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Gwei per native unit and wei per gwei.
var (
	weiPerGwei = big.NewInt(1_000_000_000)
)

// ToHuman converts raw token units into a human-readable decimal using the
// token's decimals, e.g. 1500000 with 6 decimals -> 1.5.
func ToHuman(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FromHuman converts a human-readable amount into raw token units,
// truncating any precision beyond the token's decimals.
func FromHuman(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// GweiToWei converts a gas price expressed in gwei into wei.
func GweiToWei(gwei uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gwei), weiPerGwei)
}

// WeiToGwei converts wei into a decimal gwei value for display and
// threshold comparisons.
func WeiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -9)
}
