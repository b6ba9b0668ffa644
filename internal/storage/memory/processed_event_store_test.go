package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"evm-swap-bot/internal/storage"
)

func TestProcessedEventStore_InsertOnce(t *testing.T) {
	store := NewProcessedEventStore()
	ctx := context.Background()

	err := store.Insert(ctx, "event-1", time.Now())
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
}

func TestProcessedEventStore_DuplicateKey(t *testing.T) {
	store := NewProcessedEventStore()
	ctx := context.Background()

	if err := store.Insert(ctx, "event-1", time.Now()); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, "event-1", time.Now())
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestProcessedEventStore_EmptyIDRejected(t *testing.T) {
	store := NewProcessedEventStore()

	err := store.Insert(context.Background(), "", time.Now())
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestProcessedEventStore_Prune(t *testing.T) {
	store := NewProcessedEventStore()
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Insert(ctx, "old-1", base.Add(-2*time.Hour)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, "old-2", base.Add(-time.Hour)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, "fresh", base); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	removed, err := store.Prune(ctx, base.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 pruned rows, got %d", removed)
	}

	// Pruned IDs can be inserted again, the fresh one cannot.
	if err := store.Insert(ctx, "old-1", base); err != nil {
		t.Errorf("Insert after prune failed: %v", err)
	}
	if err := store.Insert(ctx, "fresh", base); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for surviving row, got %v", err)
	}
}

func TestProcessedEventStore_PruneCutoffExclusive(t *testing.T) {
	store := NewProcessedEventStore()
	ctx := context.Background()

	cutoff := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Insert(ctx, "at-cutoff", cutoff); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	removed, err := store.Prune(ctx, cutoff)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Row observed exactly at cutoff should survive, pruned %d", removed)
	}
}
