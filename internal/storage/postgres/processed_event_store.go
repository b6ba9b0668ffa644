package postgres

import (
	"context"
	"fmt"
	"time"

	"evm-swap-bot/internal/storage"
)

// ProcessedEventStore implements storage.ProcessedEventStore using PostgreSQL.
// The primary key on event_id makes Insert the cross-process
// duplicate-execution guard.
type ProcessedEventStore struct {
	pool *Pool
}

// NewProcessedEventStore creates a new ProcessedEventStore.
func NewProcessedEventStore(pool *Pool) *ProcessedEventStore {
	return &ProcessedEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProcessedEventStore = (*ProcessedEventStore)(nil)

// Insert marks an event as handled. Returns ErrDuplicateKey if the event ID
// was already inserted.
func (s *ProcessedEventStore) Insert(ctx context.Context, eventID string, observedAt time.Time) error {
	if eventID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO processed_events (event_id, observed_at)
		VALUES ($1, $2)
	`

	_, err := s.pool.Exec(ctx, query, eventID, observedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert processed event: %w", err)
	}
	return nil
}

// Prune deletes rows observed before the cutoff and returns how many were removed.
func (s *ProcessedEventStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM processed_events
		WHERE observed_at < $1
	`

	tag, err := s.pool.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune processed events: %w", err)
	}
	return tag.RowsAffected(), nil
}
