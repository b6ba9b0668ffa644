package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/storage"
)

// ExecutionEventStore implements storage.ExecutionEventStore using ClickHouse.
// Events are append-only; the buffered telemetry recorder hands over whole
// batches, which map directly onto the driver's batch API.
type ExecutionEventStore struct {
	conn *Conn
}

// NewExecutionEventStore creates a new ExecutionEventStore.
func NewExecutionEventStore(conn *Conn) *ExecutionEventStore {
	return &ExecutionEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ExecutionEventStore = (*ExecutionEventStore)(nil)

// Insert appends a batch of events.
func (s *ExecutionEventStore) Insert(ctx context.Context, events []domain.ExecutionEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO execution_events (
			event_time, kind, wallet, token, aggregator,
			tx_hash, amount_in, amount_out, detail
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.Time,
			e.Kind.String(),
			addressText(e.Wallet),
			addressText(e.Token),
			e.Aggregator,
			hashText(e.TxHash),
			e.AmountIn,
			e.AmountOut,
			e.Detail,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// addressText renders an address as lowercase hex, empty for the zero
// address so "not applicable" fields stay blank in the table.
func addressText(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return strings.ToLower(a.Hex())
}

func hashText(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
