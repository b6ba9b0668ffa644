package domain

import "errors"

// Pipeline error taxonomy. Validation outcomes and source degradation are
// values/events, not errors; everything that aborts a round is here.
var (
	// ErrNoViableQuote is returned when zero aggregators produced a usable
	// quote, or the best quote's price impact exceeds the slippage ceiling.
	ErrNoViableQuote = errors.New("no viable quote")

	// ErrAlreadyInFlight is returned when a SwapOrder for the same
	// (wallet, token) key is still executing. The duplicate is suppressed;
	// callers treat this as flow control, not failure.
	ErrAlreadyInFlight = errors.New("order already in flight for key")

	// ErrExecutionFailed is returned for a terminal submission failure or
	// an on-chain revert. The in-flight key is released before return.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrExecutionTimeout is returned when the transaction was not seen
	// confirmed within the confirmation window. The in-flight key is
	// released so one further attempt stays possible.
	ErrExecutionTimeout = errors.New("execution confirmation timed out")

	// ErrInvalidConfig is returned at startup for unusable configuration,
	// e.g. zero enabled aggregators.
	ErrInvalidConfig = errors.New("invalid configuration")
)
