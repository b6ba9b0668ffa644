package memory

import (
	"context"
	"sync"
	"time"

	"evm-swap-bot/internal/storage"
)

// ProcessedEventStore is an in-memory implementation of storage.ProcessedEventStore.
type ProcessedEventStore struct {
	mu   sync.Mutex
	data map[string]time.Time // event ID -> observed at
}

// NewProcessedEventStore creates a new in-memory processed event store.
func NewProcessedEventStore() *ProcessedEventStore {
	return &ProcessedEventStore{
		data: make(map[string]time.Time),
	}
}

// Compile-time interface check.
var _ storage.ProcessedEventStore = (*ProcessedEventStore)(nil)

// Insert marks an event as handled. Returns ErrDuplicateKey if the event ID
// was already inserted.
func (s *ProcessedEventStore) Insert(_ context.Context, eventID string, observedAt time.Time) error {
	if eventID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[eventID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[eventID] = observedAt
	return nil
}

// Prune deletes rows observed before the cutoff and returns how many were removed.
func (s *ProcessedEventStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, observedAt := range s.data {
		if observedAt.Before(olderThan) {
			delete(s.data, id)
			removed++
		}
	}
	return removed, nil
}
