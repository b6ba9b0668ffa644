package pipeline

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"evm-swap-bot/internal/evm"
)

// NativeRater supplies the native→output conversion rate the quote broker
// uses to subtract gas cost from expected output. The rate is raw output
// units per wei.
type NativeRater interface {
	NativeOutputRate(ctx context.Context) (decimal.Decimal, error)
}

// UnitRate is the rate for deployments whose base asset is the wrapped
// native token itself: one wei of gas costs exactly one raw output unit.
type UnitRate struct{}

// NativeOutputRate implements NativeRater.
func (UnitRate) NativeOutputRate(context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

// PoolReader is the chain surface the reference-pool rate reads.
// evm.Client satisfies this.
type PoolReader interface {
	GetPoolReserves(ctx context.Context, pool common.Address) (evm.PoolReserves, error)
	Token0(ctx context.Context, pool common.Address) (common.Address, error)
}

// ReferencePoolRate derives the rate from a reference pool that pairs the
// output asset with the wrapped native token. Used when the base asset is
// not the wrapped native token.
type ReferencePoolRate struct {
	client PoolReader
	pool   common.Address
	output common.Address
}

// Compile-time interface checks.
var (
	_ NativeRater = UnitRate{}
	_ NativeRater = (*ReferencePoolRate)(nil)
)

// NewReferencePoolRate creates a rate source over the given pool. output
// is the base asset side of the pair.
func NewReferencePoolRate(client PoolReader, pool, output common.Address) *ReferencePoolRate {
	return &ReferencePoolRate{client: client, pool: pool, output: output}
}

// NativeOutputRate reads the pool and returns the ratio of the output
// reserve to the native reserve, both in raw units.
func (r *ReferencePoolRate) NativeOutputRate(ctx context.Context) (decimal.Decimal, error) {
	token0, err := r.client.Token0(ctx, r.pool)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reference pool token0: %w", err)
	}
	reserves, err := r.client.GetPoolReserves(ctx, r.pool)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reference pool reserves: %w", err)
	}

	outputReserve, nativeReserve := reserves.Reserve0, reserves.Reserve1
	if token0 != r.output {
		outputReserve, nativeReserve = reserves.Reserve1, reserves.Reserve0
	}
	if outputReserve == nil || outputReserve.Sign() <= 0 ||
		nativeReserve == nil || nativeReserve.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("reference pool %s has empty reserves", r.pool.Hex())
	}
	return decimal.NewFromBigInt(outputReserve, 0).Div(decimal.NewFromBigInt(nativeReserve, 0)), nil
}
