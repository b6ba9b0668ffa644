package reporting

import (
	"math/big"
	"time"

	"evm-swap-bot/internal/domain"
)

// Report summarizes the execution receipts of one reporting period.
type Report struct {
	GeneratedAt time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time

	Summary Summary

	// Aggregators breaks outcomes down by winning venue, sorted by name.
	Aggregators []AggregatorRow

	// Tokens breaks outcomes down by input token, sorted by address.
	Tokens []TokenRow

	// Failures lists every non-successful receipt with its reason.
	Failures []FailureRow

	// Receipts is the raw period data, ordered by finish time. The CSV
	// rendering uses it verbatim.
	Receipts []*domain.ExecutionReceipt
}

// Summary holds period-wide outcome counts and totals.
type Summary struct {
	TotalOrders int
	Executed    int // confirmed, non-reverted
	Failed      int // submitted but reverted, or confirmation lost
	Aborted     int // rejected before anything reached the chain

	// TotalRealizedOut sums the realized output of successful swaps, in
	// raw output-asset units.
	TotalRealizedOut *big.Int

	// TotalGasCostWei sums the gas actually paid across every receipt
	// that confirmed, successful or reverted.
	TotalGasCostWei *big.Int
}

// AggregatorRow is one venue's share of the period.
type AggregatorRow struct {
	Name        string
	Orders      int
	Executed    int
	RealizedOut *big.Int
}

// TokenRow is one input token's share of the period.
type TokenRow struct {
	Token    string // 0x-hex address
	Orders   int
	Executed int
	LastTx   string // tx hash of the newest submitted receipt, empty if none
}

// FailureRow is one failed or aborted order.
type FailureRow struct {
	OrderID    string
	Token      string
	Aggregator string
	Reason     string
	FinishedAt time.Time
}
