// Package sniper implements the liquidity trigger state machine that gates
// the sell pipeline for a monitored token.
package sniper

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/observability"
)

// State is one node of the trigger state machine.
type State string

const (
	// StateIdle means no pool has been observed yet.
	StateIdle State = "IDLE"
	// StateMonitoring means the pool exists with reserves below threshold.
	StateMonitoring State = "MONITORING"
	// StateArmed means reserves crossed the threshold and the machine is
	// counting confirmation ticks.
	StateArmed State = "ARMED"
	// StateTriggered means the threshold held for the confirmation count;
	// the sell pipeline owns the machine until it closes it.
	StateTriggered State = "TRIGGERED"
	// StateExecuted is terminal: the sell confirmed on-chain.
	StateExecuted State = "EXECUTED"
	// StateAborted is terminal: validation rejected at trigger time or the
	// executor exhausted its attempts.
	StateAborted State = "ABORTED"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateExecuted || s == StateAborted
}

// Observation is one monitoring tick as the tracker saw it.
type Observation struct {
	Snapshot   domain.PoolSnapshot
	ReserveUSD decimal.Decimal
	Qualified  bool // reserve valuation at or above the threshold
}

const defaultWindow = 32

// Tracker is the per-token trigger state machine. It is one-shot: once
// Executed or Aborted it never transitions again.
type Tracker struct {
	mu sync.Mutex

	token         common.Address
	threshold     decimal.Decimal
	confirmations int
	window        int

	state       State
	count       int
	history     []Observation
	abortReason string
	log         zerolog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithWindow bounds the retained observation history.
func WithWindow(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.window = n
		}
	}
}

// NewTracker creates the state machine for one monitored token.
// thresholdUSD is the minimum reserve valuation that arms the machine;
// confirmations is how many consecutive qualifying ticks, the arming tick
// included, reach Triggered.
func NewTracker(token common.Address, thresholdUSD decimal.Decimal, confirmations int, log zerolog.Logger, opts ...TrackerOption) (*Tracker, error) {
	if confirmations < 1 {
		return nil, fmt.Errorf("%w: confirmation ticks %d, need >= 1", domain.ErrInvalidConfig, confirmations)
	}
	if !thresholdUSD.IsPositive() {
		return nil, fmt.Errorf("%w: liquidity threshold must be positive", domain.ErrInvalidConfig)
	}

	t := &Tracker{
		token:         token,
		threshold:     thresholdUSD,
		confirmations: confirmations,
		window:        defaultWindow,
		state:         StateIdle,
		log: log.With().
			Str("component", "sniper").
			Str("token", token.Hex()).
			Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	observability.SetTriggerState(token.Hex(), string(StateIdle), "")
	return t, nil
}

// Token returns the monitored token address.
func (t *Tracker) Token() common.Address { return t.token }

// State returns the current machine state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// AbortReason returns why the machine aborted, empty otherwise.
func (t *Tracker) AbortReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.abortReason
}

// ThresholdHolds reports whether the most recent observation still
// qualified. The pipeline consults it before re-attempting after a
// confirmation timeout.
func (t *Tracker) ThresholdHolds() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) == 0 {
		return false
	}
	return t.history[len(t.history)-1].Qualified
}

// History returns a copy of the bounded observation window, oldest first.
func (t *Tracker) History() []Observation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Observation, len(t.history))
	copy(out, t.history)
	return out
}

// Observe applies one monitoring tick and returns the resulting state.
// Terminal machines ignore observations.
func (t *Tracker) Observe(snapshot domain.PoolSnapshot, reserveUSD decimal.Decimal) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return t.state
	}

	qualified := reserveUSD.GreaterThanOrEqual(t.threshold)
	t.record(Observation{Snapshot: snapshot, ReserveUSD: reserveUSD, Qualified: qualified})

	// First observation proves the pool exists.
	if t.state == StateIdle {
		t.transition(StateMonitoring)
	}

	switch t.state {
	case StateMonitoring:
		if qualified {
			t.count = 1
			t.transition(StateArmed)
			t.maybeTrigger(reserveUSD)
		}
	case StateArmed:
		if !qualified {
			// False signal. Reset and wait for the next crossing.
			t.count = 0
			t.transition(StateMonitoring)
			break
		}
		t.count++
		t.maybeTrigger(reserveUSD)
	case StateTriggered:
		// The sell pipeline owns the machine now; reserves collapsing here
		// are its signal to abort, not ours.
	}

	return t.state
}

// maybeTrigger fires when the consecutive qualifying count is satisfied.
// Callers hold the lock.
func (t *Tracker) maybeTrigger(reserveUSD decimal.Decimal) {
	if t.count < t.confirmations {
		return
	}
	t.transition(StateTriggered)
	t.log.Info().
		Str("reserve_usd", reserveUSD.StringFixed(2)).
		Str("threshold_usd", t.threshold.StringFixed(2)).
		Int("confirmations", t.count).
		Msg("liquidity trigger fired")
}

// MarkExecuted closes the machine after a confirmed sell.
func (t *Tracker) MarkExecuted() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateTriggered {
		return fmt.Errorf("cannot mark executed from %s", t.state)
	}
	t.transition(StateExecuted)
	return nil
}

// MarkAborted closes the machine after a trigger-time rejection or
// executor exhaustion.
func (t *Tracker) MarkAborted(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateTriggered {
		return fmt.Errorf("cannot mark aborted from %s", t.state)
	}
	t.abortReason = reason
	t.transition(StateAborted)
	t.log.Warn().Str("reason", reason).Msg("trigger aborted")
	return nil
}

// transition moves the machine and updates telemetry. Callers hold the
// lock.
func (t *Tracker) transition(next State) {
	prev := t.state
	t.state = next
	observability.SetTriggerState(t.token.Hex(), string(next), string(prev))
	t.log.Debug().
		Str("from", string(prev)).
		Str("to", string(next)).
		Int("count", t.count).
		Msg("trigger state changed")
}

// record appends to the bounded history window. Callers hold the lock.
func (t *Tracker) record(obs Observation) {
	t.history = append(t.history, obs)
	if len(t.history) > t.window {
		t.history = t.history[len(t.history)-t.window:]
	}
}
