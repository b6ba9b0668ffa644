package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-swap-bot/internal/storage"
)

func TestProcessedEventStore_Insert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewProcessedEventStore(pool)

	err := store.Insert(ctx, "a1b2c3d4", time.Now().UTC())
	require.NoError(t, err)
}

func TestProcessedEventStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewProcessedEventStore(pool)

	err := store.Insert(ctx, "dup-event", time.Now().UTC())
	require.NoError(t, err)

	// Same event ID again must map the unique violation.
	err = store.Insert(ctx, "dup-event", time.Now().UTC())
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestProcessedEventStore_InsertEmptyID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewProcessedEventStore(pool)

	err := store.Insert(context.Background(), "", time.Now().UTC())
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestProcessedEventStore_Prune(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewProcessedEventStore(pool)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, "old-1", base.Add(-2*time.Hour)))
	require.NoError(t, store.Insert(ctx, "old-2", base.Add(-time.Hour)))
	require.NoError(t, store.Insert(ctx, "fresh", base))

	removed, err := store.Prune(ctx, base.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	// Pruned IDs are insertable again, the surviving one is not.
	assert.NoError(t, store.Insert(ctx, "old-1", base))
	assert.ErrorIs(t, store.Insert(ctx, "fresh", base), storage.ErrDuplicateKey)
}

func TestProcessedEventStore_PruneEmptyTable(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewProcessedEventStore(pool)

	removed, err := store.Prune(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
