package postgres

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/storage"
)

// ReceiptStore implements storage.ReceiptStore using PostgreSQL.
// Addresses and hashes are stored as lowercase hex text, raw amounts as
// decimal text so uint256 values survive the round trip exactly.
type ReceiptStore struct {
	pool *Pool
}

// NewReceiptStore creates a new ReceiptStore.
func NewReceiptStore(pool *Pool) *ReceiptStore {
	return &ReceiptStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReceiptStore = (*ReceiptStore)(nil)

// Insert adds a new receipt. Returns ErrDuplicateKey if order_id exists.
func (s *ReceiptStore) Insert(ctx context.Context, r *domain.ExecutionReceipt) error {
	if r == nil || r.OrderID == uuid.Nil || r.AmountIn == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO receipts (
			order_id, wallet, token_in, token_out, aggregator, success,
			tx_hash, amount_in, realized_out, realized_gas_cost,
			failure_reason, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		r.OrderID,
		addressText(r.Wallet),
		addressText(r.TokenIn),
		addressText(r.TokenOut),
		r.Aggregator,
		r.Success,
		hashText(r.TxHash),
		r.AmountIn.String(),
		bigText(r.RealizedOut),
		bigText(r.RealizedGasCost),
		r.FailureReason,
		r.FinishedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

// GetByOrderID retrieves the receipt for an order. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.ExecutionReceipt, error) {
	query := `
		SELECT order_id, wallet, token_in, token_out, aggregator, success,
		       tx_hash, amount_in, realized_out, realized_gas_cost,
		       failure_reason, finished_at
		FROM receipts
		WHERE order_id = $1
	`

	row := s.pool.QueryRow(ctx, query, orderID)
	r, err := scanReceipt(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get receipt by order id: %w", err)
	}
	return r, nil
}

// GetByWallet retrieves all receipts for a wallet, ordered by finished_at ASC.
func (s *ReceiptStore) GetByWallet(ctx context.Context, wallet common.Address) ([]*domain.ExecutionReceipt, error) {
	query := `
		SELECT order_id, wallet, token_in, token_out, aggregator, success,
		       tx_hash, amount_in, realized_out, realized_gas_cost,
		       failure_reason, finished_at
		FROM receipts
		WHERE wallet = $1
		ORDER BY finished_at ASC, order_id ASC
	`

	rows, err := s.pool.Query(ctx, query, addressText(wallet))
	if err != nil {
		return nil, fmt.Errorf("get receipts by wallet: %w", err)
	}
	defer rows.Close()

	return scanReceipts(rows)
}

// GetByTimeRange retrieves receipts finished within [start, end] (inclusive).
func (s *ReceiptStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.ExecutionReceipt, error) {
	query := `
		SELECT order_id, wallet, token_in, token_out, aggregator, success,
		       tx_hash, amount_in, realized_out, realized_gas_cost,
		       failure_reason, finished_at
		FROM receipts
		WHERE finished_at >= $1 AND finished_at <= $2
		ORDER BY finished_at ASC, order_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get receipts by time range: %w", err)
	}
	defer rows.Close()

	return scanReceipts(rows)
}

// scanReceipt scans a single row into an ExecutionReceipt.
func scanReceipt(row pgx.Row) (*domain.ExecutionReceipt, error) {
	var (
		r           domain.ExecutionReceipt
		wallet      string
		tokenIn     string
		tokenOut    string
		txHash      string
		amountIn    string
		realizedOut *string
		realizedGas *string
	)

	err := row.Scan(
		&r.OrderID,
		&wallet,
		&tokenIn,
		&tokenOut,
		&r.Aggregator,
		&r.Success,
		&txHash,
		&amountIn,
		&realizedOut,
		&realizedGas,
		&r.FailureReason,
		&r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Wallet = common.HexToAddress(wallet)
	r.TokenIn = common.HexToAddress(tokenIn)
	r.TokenOut = common.HexToAddress(tokenOut)
	r.TxHash = common.HexToHash(txHash)

	if r.AmountIn, err = parseBigText(amountIn); err != nil {
		return nil, err
	}
	if realizedOut != nil {
		if r.RealizedOut, err = parseBigText(*realizedOut); err != nil {
			return nil, err
		}
	}
	if realizedGas != nil {
		if r.RealizedGasCost, err = parseBigText(*realizedGas); err != nil {
			return nil, err
		}
	}

	return &r, nil
}

// scanReceipts scans multiple rows into a slice of ExecutionReceipt.
func scanReceipts(rows pgx.Rows) ([]*domain.ExecutionReceipt, error) {
	var receipts []*domain.ExecutionReceipt

	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipt rows: %w", err)
	}

	return receipts, nil
}

// addressText renders an address as lowercase hex for storage and lookups.
func addressText(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// hashText renders a hash as hex, empty for the zero hash so unsubmitted
// receipts read naturally in the table.
func hashText(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}

// bigText renders an optional big.Int as decimal text, nil maps to NULL.
func bigText(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseBigText(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed stored amount %q", s)
	}
	return v, nil
}
