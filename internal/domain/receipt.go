package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ExecutionReceipt is the terminal, immutable outcome of exactly one
// SwapOrder. Realized amounts come from the confirmed transaction, not
// from the quote estimate. Corresponds to the receipts table in PostgreSQL.
type ExecutionReceipt struct {
	OrderID         uuid.UUID      // the order this receipt closes
	Wallet          common.Address // order owner
	TokenIn         common.Address // asset sold
	TokenOut        common.Address // asset bought
	Aggregator      string         // winning aggregator
	Success         bool           // true only for a confirmed, non-reverted tx
	TxHash          common.Hash    // zero when nothing was submitted
	AmountIn        *big.Int       // raw input units from the order
	RealizedOut     *big.Int       // raw output units from the confirmed tx, nil on failure
	RealizedGasCost *big.Int       // wei actually paid, nil when nothing confirmed
	FailureReason   string         // empty on success
	FinishedAt      time.Time
}

// Submitted reports whether a transaction reached the chain.
func (r ExecutionReceipt) Submitted() bool {
	return r.TxHash != (common.Hash{})
}
