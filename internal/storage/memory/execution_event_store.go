package memory

import (
	"context"
	"sync"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/storage"
)

// ExecutionEventStore is an in-memory implementation of storage.ExecutionEventStore.
// It backs Postgres-less runs and lets tests inspect recorded telemetry.
type ExecutionEventStore struct {
	mu     sync.RWMutex
	events []domain.ExecutionEvent
}

// NewExecutionEventStore creates a new in-memory execution event store.
func NewExecutionEventStore() *ExecutionEventStore {
	return &ExecutionEventStore{}
}

// Compile-time interface check.
var _ storage.ExecutionEventStore = (*ExecutionEventStore)(nil)

// Insert appends a batch of events.
func (s *ExecutionEventStore) Insert(_ context.Context, events []domain.ExecutionEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, events...)
	return nil
}

// Events returns a copy of everything inserted so far, in insertion order.
func (s *ExecutionEventStore) Events() []domain.ExecutionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ExecutionEvent, len(s.events))
	copy(out, s.events)
	return out
}
