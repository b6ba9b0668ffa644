// Package pipeline runs the two end-to-end swap flows. The AutoSwap runner
// turns detected wallet assets into base-asset swaps; the Sniper runner
// drives the liquidity trigger machine for one monitored token and sells
// into the pool once the trigger confirms. The runners orchestrate and
// record; validation, quoting, execution and persistence live in their own
// packages.
package pipeline

import (
	"context"
	"math/big"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/quoting"
	"evm-swap-bot/internal/safety"
)

// QuoteSource selects the winning quote for one round. *quoting.Broker
// satisfies this.
type QuoteSource interface {
	BestQuote(ctx context.Context, req quoting.Request) (domain.Quote, error)
}

// OrderExecutor turns one order into one receipt. *execution.Executor
// satisfies this.
type OrderExecutor interface {
	Execute(ctx context.Context, order domain.SwapOrder) (domain.ExecutionReceipt, error)
}

// AssetValidator decides whether an asset event may be swapped.
// *safety.Validator satisfies this.
type AssetValidator interface {
	EvaluateAsset(ctx context.Context, event domain.AssetEvent) safety.Decision
}

// PoolValidator decides whether a triggered pool event may be sold into.
// *safety.Validator satisfies this.
type PoolValidator interface {
	EvaluatePool(ctx context.Context, event domain.PoolEvent, sell domain.WalletAsset) safety.Decision
}

// amountText renders a raw amount for telemetry fields, empty when nil.
func amountText(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
