package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/storage"
)

var (
	walletA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	walletB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func testReceipt(wallet common.Address, finishedAt time.Time) *domain.ExecutionReceipt {
	return &domain.ExecutionReceipt{
		OrderID:         uuid.New(),
		Wallet:          wallet,
		TokenIn:         common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		TokenOut:        common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		Aggregator:      "1inch",
		Success:         true,
		TxHash:          common.HexToHash("0x01"),
		AmountIn:        big.NewInt(1_000_000),
		RealizedOut:     big.NewInt(990_000),
		RealizedGasCost: big.NewInt(21_000),
		FinishedAt:      finishedAt,
	}
}

func TestReceiptStore_InsertAndGet(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := testReceipt(walletA, time.Now())
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByOrderID(ctx, r.OrderID)
	if err != nil {
		t.Fatalf("GetByOrderID failed: %v", err)
	}

	if got.Wallet != r.Wallet {
		t.Errorf("Wallet mismatch: got %s, want %s", got.Wallet, r.Wallet)
	}
	if got.Aggregator != "1inch" {
		t.Errorf("Aggregator mismatch: got %s", got.Aggregator)
	}
	if got.AmountIn.Cmp(r.AmountIn) != 0 {
		t.Errorf("AmountIn mismatch: got %s, want %s", got.AmountIn, r.AmountIn)
	}
}

func TestReceiptStore_DuplicateOrderID(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := testReceipt(walletA, time.Now())
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, r)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestReceiptStore_NotFound(t *testing.T) {
	store := NewReceiptStore()

	_, err := store.GetByOrderID(context.Background(), uuid.New())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReceiptStore_NilOrderIDRejected(t *testing.T) {
	store := NewReceiptStore()

	err := store.Insert(context.Background(), &domain.ExecutionReceipt{})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestReceiptStore_GetByWallet(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of order so the sort is doing the work.
	second := testReceipt(walletA, base.Add(time.Minute))
	first := testReceipt(walletA, base)
	other := testReceipt(walletB, base)

	for _, r := range []*domain.ExecutionReceipt{second, first, other} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.GetByWallet(ctx, walletA)
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("Expected 2 receipts, got %d", len(result))
	}
	if result[0].OrderID != first.OrderID || result[1].OrderID != second.OrderID {
		t.Errorf("Receipts not ordered by finished_at ASC")
	}
}

func TestReceiptStore_GetByTimeRange(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	before := testReceipt(walletA, base.Add(-time.Hour))
	atStart := testReceipt(walletA, base)
	atEnd := testReceipt(walletB, base.Add(time.Hour))
	after := testReceipt(walletB, base.Add(2*time.Hour))

	for _, r := range []*domain.ExecutionReceipt{before, atStart, atEnd, after} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.GetByTimeRange(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("Expected 2 receipts in range, got %d", len(result))
	}
	if result[0].OrderID != atStart.OrderID || result[1].OrderID != atEnd.OrderID {
		t.Errorf("Range boundaries should be inclusive and ordered")
	}
}

func TestReceiptStore_InsertCopies(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := testReceipt(walletA, time.Now())
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the caller's big.Int must not reach the stored receipt.
	r.AmountIn.SetInt64(7)

	got, err := store.GetByOrderID(ctx, r.OrderID)
	if err != nil {
		t.Fatalf("GetByOrderID failed: %v", err)
	}
	if got.AmountIn.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("Stored receipt was mutated through caller's pointer: %s", got.AmountIn)
	}
}

func TestReceiptStore_FailureReceiptNilAmounts(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := &domain.ExecutionReceipt{
		OrderID:       uuid.New(),
		Wallet:        walletA,
		TokenIn:       common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		TokenOut:      common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		Aggregator:    "0x",
		Success:       false,
		AmountIn:      big.NewInt(500),
		FailureReason: "quote expired before submission",
		FinishedAt:    time.Now(),
	}

	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByOrderID(ctx, r.OrderID)
	if err != nil {
		t.Fatalf("GetByOrderID failed: %v", err)
	}
	if got.RealizedOut != nil || got.RealizedGasCost != nil {
		t.Errorf("Nil amounts should round-trip as nil")
	}
	if got.FailureReason != r.FailureReason {
		t.Errorf("FailureReason mismatch: got %q", got.FailureReason)
	}
}
