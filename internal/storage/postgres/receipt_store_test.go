package postgres

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/storage"
)

var (
	testWallet   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	otherWallet  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testTokenIn  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testTokenOut = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
)

// successReceipt builds a confirmed receipt with a huge realized amount to
// exercise the text round trip beyond int64 range.
func successReceipt(wallet common.Address, finishedAt time.Time) *domain.ExecutionReceipt {
	realized, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457", 10)
	return &domain.ExecutionReceipt{
		OrderID:         uuid.New(),
		Wallet:          wallet,
		TokenIn:         testTokenIn,
		TokenOut:        testTokenOut,
		Aggregator:      "1inch",
		Success:         true,
		TxHash:          common.HexToHash("0xdeadbeef"),
		AmountIn:        big.NewInt(1_000_000),
		RealizedOut:     realized,
		RealizedGasCost: big.NewInt(9_450_000_000_000_000),
		FinishedAt:      finishedAt,
	}
}

func TestReceiptStore_InsertAndGetByOrderID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewReceiptStore(pool)

	r := successReceipt(testWallet, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, store.Insert(ctx, r))

	got, err := store.GetByOrderID(ctx, r.OrderID)
	require.NoError(t, err)

	assert.Equal(t, r.OrderID, got.OrderID)
	assert.Equal(t, r.Wallet, got.Wallet)
	assert.Equal(t, r.TokenIn, got.TokenIn)
	assert.Equal(t, r.TokenOut, got.TokenOut)
	assert.Equal(t, "1inch", got.Aggregator)
	assert.True(t, got.Success)
	assert.Equal(t, r.TxHash, got.TxHash)
	assert.Zero(t, r.AmountIn.Cmp(got.AmountIn))
	assert.Zero(t, r.RealizedOut.Cmp(got.RealizedOut))
	assert.Zero(t, r.RealizedGasCost.Cmp(got.RealizedGasCost))
	assert.Empty(t, got.FailureReason)
	assert.True(t, r.FinishedAt.Equal(got.FinishedAt))
}

func TestReceiptStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewReceiptStore(pool)

	r := successReceipt(testWallet, time.Now().UTC())
	require.NoError(t, store.Insert(ctx, r))

	err := store.Insert(ctx, r)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestReceiptStore_GetByOrderIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReceiptStore(pool)

	_, err := store.GetByOrderID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReceiptStore_FailureReceiptRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewReceiptStore(pool)

	r := &domain.ExecutionReceipt{
		OrderID:       uuid.New(),
		Wallet:        testWallet,
		TokenIn:       testTokenIn,
		TokenOut:      testTokenOut,
		Aggregator:    "0x",
		Success:       false,
		AmountIn:      big.NewInt(777),
		FailureReason: "quote expired before submission",
		FinishedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Insert(ctx, r))

	got, err := store.GetByOrderID(ctx, r.OrderID)
	require.NoError(t, err)

	assert.False(t, got.Success)
	assert.False(t, got.Submitted())
	assert.Nil(t, got.RealizedOut)
	assert.Nil(t, got.RealizedGasCost)
	assert.Equal(t, "quote expired before submission", got.FailureReason)
}

func TestReceiptStore_GetByWallet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewReceiptStore(pool)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	second := successReceipt(testWallet, base.Add(time.Minute))
	first := successReceipt(testWallet, base)
	other := successReceipt(otherWallet, base)

	for _, r := range []*domain.ExecutionReceipt{second, first, other} {
		require.NoError(t, store.Insert(ctx, r))
	}

	result, err := store.GetByWallet(ctx, testWallet)
	require.NoError(t, err)

	require.Len(t, result, 2)
	assert.Equal(t, first.OrderID, result[0].OrderID)
	assert.Equal(t, second.OrderID, result[1].OrderID)
}

func TestReceiptStore_GetByTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewReceiptStore(pool)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	before := successReceipt(testWallet, base.Add(-time.Hour))
	atStart := successReceipt(testWallet, base)
	atEnd := successReceipt(otherWallet, base.Add(time.Hour))
	after := successReceipt(otherWallet, base.Add(2*time.Hour))

	for _, r := range []*domain.ExecutionReceipt{before, atStart, atEnd, after} {
		require.NoError(t, store.Insert(ctx, r))
	}

	result, err := store.GetByTimeRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)

	require.Len(t, result, 2)
	assert.Equal(t, atStart.OrderID, result[0].OrderID)
	assert.Equal(t, atEnd.OrderID, result[1].OrderID)
}

func TestReceiptStore_EmptyResult(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewReceiptStore(pool)

	result, err := store.GetByWallet(ctx, testWallet)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestReceiptStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewReceiptStore(pool)
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.ExecutionReceipt{}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.ExecutionReceipt{OrderID: uuid.New()}), storage.ErrInvalidInput)
}
