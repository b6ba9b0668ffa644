package storage

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"evm-swap-bot/internal/domain"
)

// ProcessedEventStore records event IDs the pipeline has committed to
// executing. The unique insert is the cross-process duplicate-execution
// guard: whichever path inserts first owns the event.
type ProcessedEventStore interface {
	// Insert marks an event as handled. Returns ErrDuplicateKey if the
	// event ID was already inserted.
	Insert(ctx context.Context, eventID string, observedAt time.Time) error

	// Prune deletes rows observed before the cutoff and returns how many
	// were removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// ReceiptStore provides access to terminal execution receipts.
type ReceiptStore interface {
	// Insert adds a new receipt. Returns ErrDuplicateKey if order_id exists.
	Insert(ctx context.Context, r *domain.ExecutionReceipt) error

	// GetByOrderID retrieves the receipt for an order. Returns ErrNotFound if not exists.
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.ExecutionReceipt, error)

	// GetByWallet retrieves all receipts for a wallet, ordered by finished_at ASC.
	GetByWallet(ctx context.Context, wallet common.Address) ([]*domain.ExecutionReceipt, error)

	// GetByTimeRange retrieves receipts finished within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.ExecutionReceipt, error)
}

// ExecutionEventStore persists batches of pipeline telemetry events.
type ExecutionEventStore interface {
	// Insert appends a batch of events. Events are append-only and carry
	// no uniqueness constraint.
	Insert(ctx context.Context, events []domain.ExecutionEvent) error
}
