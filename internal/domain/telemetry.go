package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ExecutionEventKind classifies the structured events the pipeline emits
// for logging and telemetry. These are data, not formatted text.
type ExecutionEventKind string

const (
	EventAccepted   ExecutionEventKind = "accepted"
	EventRejected   ExecutionEventKind = "rejected"
	EventDeferred   ExecutionEventKind = "deferred"
	EventSuppressed ExecutionEventKind = "suppressed"
	EventQuoted     ExecutionEventKind = "quoted"
	EventNoQuote    ExecutionEventKind = "no_quote"
	EventSubmitted  ExecutionEventKind = "submitted"
	EventExecuted   ExecutionEventKind = "executed"
	EventFailed     ExecutionEventKind = "failed"
	EventTimeout    ExecutionEventKind = "timeout"
	EventDegraded   ExecutionEventKind = "degraded"
	EventRecovered  ExecutionEventKind = "recovered"
)

// String returns the string representation of the kind.
func (k ExecutionEventKind) String() string {
	return string(k)
}

// ExecutionEvent is one structured pipeline occurrence destined for the
// telemetry sink. Corresponds to the execution_events table in ClickHouse.
type ExecutionEvent struct {
	Time       time.Time          // when the event occurred
	Kind       ExecutionEventKind // what happened
	Wallet     common.Address     // acting wallet, zero if not applicable
	Token      common.Address     // subject token, zero if not applicable
	Aggregator string             // winning/attempted aggregator, empty if none
	TxHash     common.Hash        // zero unless a tx exists
	AmountIn   string             // decimal string, empty if not applicable
	AmountOut  string             // decimal string, empty if not applicable
	Detail     string             // reason / context, free form
}
