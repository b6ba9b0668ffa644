package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SwapOrder is the executor's unit of work: one winning quote plus the
// execution bounds it must honor. The executor owns the order exclusively
// for the duration of one execution attempt; at most one order per
// (wallet, token-in) key may be in flight at a time.
type SwapOrder struct {
	ID                uuid.UUID       // assigned at creation
	Wallet            common.Address  // order owner, pays gas and receives output
	Quote             Quote           // winning quote, passed through unmodified
	SlippageTolerance decimal.Decimal // percent ceiling on price impact
	MaxGasPrice       *big.Int        // wei ceiling, never exceeded by retries
	CreatedAt         time.Time
}

// Key returns the in-flight registry key for the order.
func (o SwapOrder) Key() string {
	return OrderKey(o.Wallet, o.Quote.TokenIn)
}

// OrderKey builds the canonical (wallet, token) in-flight key.
func OrderKey(wallet, token common.Address) string {
	return strings.ToLower(wallet.Hex()) + "/" + strings.ToLower(token.Hex())
}
