package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/storage"
)

// ReceiptStore is an in-memory implementation of storage.ReceiptStore.
type ReceiptStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*domain.ExecutionReceipt
}

// NewReceiptStore creates a new in-memory receipt store.
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		data: make(map[uuid.UUID]*domain.ExecutionReceipt),
	}
}

// Compile-time interface check.
var _ storage.ReceiptStore = (*ReceiptStore)(nil)

// Insert adds a new receipt. Returns ErrDuplicateKey if order_id exists.
func (s *ReceiptStore) Insert(_ context.Context, r *domain.ExecutionReceipt) error {
	if r == nil || r.OrderID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.OrderID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.OrderID] = cloneReceipt(r)
	return nil
}

// GetByOrderID retrieves the receipt for an order. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetByOrderID(_ context.Context, orderID uuid.UUID) (*domain.ExecutionReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[orderID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneReceipt(r), nil
}

// GetByWallet retrieves all receipts for a wallet, ordered by finished_at ASC.
func (s *ReceiptStore) GetByWallet(_ context.Context, wallet common.Address) ([]*domain.ExecutionReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionReceipt
	for _, r := range s.data {
		if r.Wallet == wallet {
			result = append(result, cloneReceipt(r))
		}
	}

	sortReceipts(result)
	return result, nil
}

// GetByTimeRange retrieves receipts finished within [start, end] (inclusive).
func (s *ReceiptStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.ExecutionReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionReceipt
	for _, r := range s.data {
		if !r.FinishedAt.Before(start) && !r.FinishedAt.After(end) {
			result = append(result, cloneReceipt(r))
		}
	}

	sortReceipts(result)
	return result, nil
}

func sortReceipts(receipts []*domain.ExecutionReceipt) {
	sort.Slice(receipts, func(i, j int) bool {
		if !receipts[i].FinishedAt.Equal(receipts[j].FinishedAt) {
			return receipts[i].FinishedAt.Before(receipts[j].FinishedAt)
		}
		return receipts[i].OrderID.String() < receipts[j].OrderID.String()
	})
}

// cloneReceipt copies a receipt including its big.Int amounts so callers
// cannot mutate stored state.
func cloneReceipt(r *domain.ExecutionReceipt) *domain.ExecutionReceipt {
	clone := *r
	clone.AmountIn = cloneBig(r.AmountIn)
	clone.RealizedOut = cloneBig(r.RealizedOut)
	clone.RealizedGasCost = cloneBig(r.RealizedGasCost)
	return &clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
