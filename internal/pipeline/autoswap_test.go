package pipeline

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/quoting"
	"evm-swap-bot/internal/safety"
	"evm-swap-bot/internal/storage/memory"
)

var (
	testWallet = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testBase   = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type scriptedValidator struct {
	mu        sync.Mutex
	decisions []safety.Decision
	calls     int
}

func (v *scriptedValidator) EvaluateAsset(_ context.Context, _ domain.AssetEvent) safety.Decision {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if len(v.decisions) == 0 {
		return safety.Decision{Action: safety.Accept}
	}
	d := v.decisions[0]
	if len(v.decisions) > 1 {
		v.decisions = v.decisions[1:]
	}
	return d
}

type fixedQuotes struct {
	mu    sync.Mutex
	quote domain.Quote
	err   error
	calls int
}

func (q *fixedQuotes) BestQuote(_ context.Context, req quoting.Request) (domain.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return domain.Quote{}, q.err
	}
	quote := q.quote
	quote.TokenIn = req.TokenIn
	quote.TokenOut = req.TokenOut
	quote.AmountIn = req.AmountIn
	return quote, nil
}

type scriptedExecutor struct {
	mu       sync.Mutex
	receipts []domain.ExecutionReceipt
	errs     []error
	orders   []domain.SwapOrder
	block    chan struct{} // when set, Execute waits for a send
}

func (e *scriptedExecutor) Execute(ctx context.Context, order domain.SwapOrder) (domain.ExecutionReceipt, error) {
	e.mu.Lock()
	e.orders = append(e.orders, order)
	i := len(e.orders) - 1
	block := e.block
	e.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if i < len(e.errs) {
		err = e.errs[i]
	}
	receipt := domain.ExecutionReceipt{
		OrderID:    order.ID,
		Wallet:     order.Wallet,
		TokenIn:    order.Quote.TokenIn,
		TokenOut:   order.Quote.TokenOut,
		AmountIn:   order.Quote.AmountIn,
		FinishedAt: time.Now(),
	}
	if i < len(e.receipts) {
		receipt = e.receipts[i]
		receipt.OrderID = order.ID
	}
	return receipt, err
}

func (e *scriptedExecutor) executed() []domain.SwapOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.SwapOrder(nil), e.orders...)
}

type captureRecorder struct {
	mu     sync.Mutex
	events []domain.ExecutionEvent
}

func (r *captureRecorder) Record(_ context.Context, event domain.ExecutionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *captureRecorder) kinds() []domain.ExecutionEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ExecutionEventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *captureRecorder) has(kind domain.ExecutionEventKind) bool {
	for _, k := range r.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func testQuote() domain.Quote {
	return domain.Quote{
		Aggregator:   "1inch",
		ExpectedOut:  big.NewInt(5_000_000),
		EstimatedGas: 150_000,
		Expiry:       time.Now().Add(time.Minute),
	}
}

func assetEvent(id string, balance int64) domain.AssetEvent {
	return domain.AssetEvent{
		ID:     id,
		Wallet: testWallet,
		Asset: domain.WalletAsset{
			Token:    testToken,
			Symbol:   "TKN",
			Balance:  big.NewInt(balance),
			Decimals: 18,
		},
		Source:     domain.SourcePoll,
		ObservedAt: time.Now(),
	}
}

func newAutoSwapHarness(t *testing.T, cfg AutoSwapConfig) (*AutoSwap, *captureRecorder) {
	t.Helper()
	recorder := &captureRecorder{}
	if cfg.Validator == nil {
		cfg.Validator = &scriptedValidator{}
	}
	if cfg.Quotes == nil {
		cfg.Quotes = &fixedQuotes{quote: testQuote()}
	}
	if cfg.Executor == nil {
		cfg.Executor = &scriptedExecutor{receipts: []domain.ExecutionReceipt{{
			Wallet:  testWallet,
			TokenIn: testToken,
			Success: true,
			TxHash:  common.HexToHash("0x01"),
		}}}
	}
	if cfg.Rate == nil {
		cfg.Rate = UnitRate{}
	}
	if cfg.Processed == nil {
		cfg.Processed = memory.NewProcessedEventStore()
	}
	if cfg.Receipts == nil {
		cfg.Receipts = memory.NewReceiptStore()
	}
	cfg.Recorder = recorder
	cfg.Logger = zerolog.Nop()
	if cfg.BaseAsset == (common.Address{}) {
		cfg.BaseAsset = testBase
	}
	if cfg.SlippagePct.IsZero() {
		cfg.SlippagePct = decimal.NewFromFloat(5)
	}

	runner, err := NewAutoSwap(cfg)
	require.NoError(t, err)
	return runner, recorder
}

func runEvents(runner *AutoSwap, events ...domain.AssetEvent) {
	ch := make(chan domain.AssetEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	runner.Run(context.Background(), ch)
}

func TestAutoSwapExecutesAcceptedEvent(t *testing.T) {
	executor := &scriptedExecutor{receipts: []domain.ExecutionReceipt{{
		Wallet:      testWallet,
		TokenIn:     testToken,
		TokenOut:    testBase,
		Aggregator:  "1inch",
		Success:     true,
		TxHash:      common.HexToHash("0x01"),
		AmountIn:    big.NewInt(1000),
		RealizedOut: big.NewInt(4_900_000),
		FinishedAt:  time.Now(),
	}}}
	receipts := memory.NewReceiptStore()
	runner, recorder := newAutoSwapHarness(t, AutoSwapConfig{
		Executor: executor,
		Receipts: receipts,
	})

	runEvents(runner, assetEvent("ev-1", 1000))

	orders := executor.executed()
	require.Len(t, orders, 1)
	assert.Equal(t, testWallet, orders[0].Wallet)
	assert.Equal(t, testBase, orders[0].Quote.TokenOut)

	stored, err := receipts.GetByWallet(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Success)

	assert.True(t, recorder.has(domain.EventAccepted))
	assert.True(t, recorder.has(domain.EventQuoted))
	assert.True(t, recorder.has(domain.EventSubmitted))
	assert.True(t, recorder.has(domain.EventExecuted))
}

func TestAutoSwapRejectedEventNeverQuotes(t *testing.T) {
	quotes := &fixedQuotes{quote: testQuote()}
	executor := &scriptedExecutor{}
	runner, recorder := newAutoSwapHarness(t, AutoSwapConfig{
		Validator: &scriptedValidator{decisions: []safety.Decision{
			{Action: safety.RejectPermanent, Reason: "token blacklisted"},
		}},
		Quotes:   quotes,
		Executor: executor,
	})

	runEvents(runner, assetEvent("ev-1", 1000))

	assert.Zero(t, quotes.calls)
	assert.Empty(t, executor.executed())
	assert.True(t, recorder.has(domain.EventRejected))
	assert.False(t, recorder.has(domain.EventAccepted))
}

func TestAutoSwapDeferredEventReenters(t *testing.T) {
	validator := &scriptedValidator{decisions: []safety.Decision{
		{Action: safety.Defer, Reason: "value below floor"},
		{Action: safety.Defer, Reason: "value below floor"},
		{Action: safety.Accept},
	}}
	executor := &scriptedExecutor{receipts: []domain.ExecutionReceipt{{
		Wallet: testWallet, TokenIn: testToken, Success: true, TxHash: common.HexToHash("0x01"),
	}}}
	runner, recorder := newAutoSwapHarness(t, AutoSwapConfig{
		Validator:     validator,
		Executor:      executor,
		DeferInterval: time.Millisecond,
	})

	runEvents(runner, assetEvent("ev-1", 1000))

	assert.Equal(t, 3, validator.calls)
	require.Len(t, executor.executed(), 1)
	assert.True(t, recorder.has(domain.EventDeferred))
	assert.True(t, recorder.has(domain.EventExecuted))
}

func TestAutoSwapNoQuoteDropsEvent(t *testing.T) {
	executor := &scriptedExecutor{}
	runner, recorder := newAutoSwapHarness(t, AutoSwapConfig{
		Quotes:   &fixedQuotes{err: domain.ErrNoViableQuote},
		Executor: executor,
	})

	runEvents(runner, assetEvent("ev-1", 1000))

	assert.Empty(t, executor.executed())
	assert.True(t, recorder.has(domain.EventNoQuote))
	assert.False(t, recorder.has(domain.EventSubmitted))
}

func TestAutoSwapProcessedGuardSuppressesReplay(t *testing.T) {
	processed := memory.NewProcessedEventStore()
	require.NoError(t, processed.Insert(context.Background(), "ev-1", time.Now()))

	executor := &scriptedExecutor{}
	runner, recorder := newAutoSwapHarness(t, AutoSwapConfig{
		Executor:  executor,
		Processed: processed,
	})

	runEvents(runner, assetEvent("ev-1", 1000))

	assert.Empty(t, executor.executed())
	assert.True(t, recorder.has(domain.EventSuppressed))
}

func TestAutoSwapNewerEventSupersedesPending(t *testing.T) {
	// The first round blocks inside the executor only after committing, so
	// supersession must happen during validation. Block in the validator
	// instead: hold the first round at the defer wait.
	validator := &scriptedValidator{decisions: []safety.Decision{
		{Action: safety.Defer, Reason: "warming up"},
		{Action: safety.Accept},
		{Action: safety.Accept},
	}}
	executor := &scriptedExecutor{receipts: []domain.ExecutionReceipt{{
		Wallet: testWallet, TokenIn: testToken, Success: true, TxHash: common.HexToHash("0x01"),
	}}}
	runner, recorder := newAutoSwapHarness(t, AutoSwapConfig{
		Validator:     validator,
		Executor:      executor,
		DeferInterval: time.Second,
	})

	ch := make(chan domain.AssetEvent, 2)
	ch <- assetEvent("ev-1", 1000)
	ch <- assetEvent("ev-2", 2000) // same key, newer balance
	close(ch)
	runner.Run(context.Background(), ch)

	orders := executor.executed()
	require.Len(t, orders, 1)
	assert.Equal(t, big.NewInt(2000), orders[0].Quote.AmountIn)
	assert.True(t, recorder.has(domain.EventSuppressed))
}

func TestAutoSwapCommittedRoundSuppressesNewcomer(t *testing.T) {
	block := make(chan struct{})
	executor := &scriptedExecutor{
		block: block,
		receipts: []domain.ExecutionReceipt{{
			Wallet: testWallet, TokenIn: testToken, Success: true, TxHash: common.HexToHash("0x01"),
		}},
	}
	runner, recorder := newAutoSwapHarness(t, AutoSwapConfig{Executor: executor})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan domain.AssetEvent, 2)
	done := make(chan struct{})
	go func() {
		runner.Run(ctx, ch)
		close(done)
	}()

	ch <- assetEvent("ev-1", 1000)
	// Wait for the first round to commit and block inside the executor.
	require.Eventually(t, func() bool {
		return len(executor.executed()) == 1
	}, time.Second, 5*time.Millisecond)

	ch <- assetEvent("ev-2", 2000)
	require.Eventually(t, func() bool {
		return recorder.has(domain.EventSuppressed)
	}, time.Second, 5*time.Millisecond)

	close(block)
	close(ch)
	<-done

	require.Len(t, executor.executed(), 1)
}

func TestAutoSwapFailedExecutionRecordsReceipt(t *testing.T) {
	receipts := memory.NewReceiptStore()
	executor := &scriptedExecutor{
		receipts: []domain.ExecutionReceipt{{
			Wallet:        testWallet,
			TokenIn:       testToken,
			TxHash:        common.HexToHash("0x02"),
			FailureReason: "transaction reverted",
			FinishedAt:    time.Now(),
		}},
		errs: []error{domain.ErrExecutionFailed},
	}
	runner, recorder := newAutoSwapHarness(t, AutoSwapConfig{
		Executor: executor,
		Receipts: receipts,
	})

	runEvents(runner, assetEvent("ev-1", 1000))

	stored, err := receipts.GetByWallet(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Success)
	assert.Equal(t, "transaction reverted", stored[0].FailureReason)
	assert.True(t, recorder.has(domain.EventFailed))
}
