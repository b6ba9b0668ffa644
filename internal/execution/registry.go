// Package execution turns winning quotes into confirmed on-chain swaps.
// The Registry enforces the one-order-per-key rule; the Executor owns the
// submit/retry/confirm lifecycle of a single SwapOrder.
package execution

import (
	"fmt"
	"sync"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/observability"
)

// Registry is the in-flight order ledger, the only mutable state shared
// between the pipelines and the detection sources.
type Registry struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewRegistry returns an empty ledger.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[string]struct{})}
}

// Acquire claims the key for one execution round. A key that is already
// claimed rejects with domain.ErrAlreadyInFlight.
func (r *Registry) Acquire(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.keys[key]; held {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyInFlight, key)
	}
	r.keys[key] = struct{}{}
	observability.SetInFlightOrders(len(r.keys))
	return nil
}

// Release frees the key. Releasing an unclaimed key is a no-op.
func (r *Registry) Release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, key)
	observability.SetInFlightOrders(len(r.keys))
}

// InFlight reports whether the key is currently claimed.
func (r *Registry) InFlight(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.keys[key]
	return held
}

// Size returns the number of claimed keys.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
