package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/observability"
	"evm-swap-bot/internal/quoting"
	"evm-swap-bot/internal/storage"
	"evm-swap-bot/internal/telemetry"
)

// AutoSwapConfig wires an AutoSwap runner.
type AutoSwapConfig struct {
	Validator AssetValidator
	Quotes    QuoteSource
	Executor  OrderExecutor
	Rate      NativeRater
	Processed storage.ProcessedEventStore
	Receipts  storage.ReceiptStore
	Recorder  telemetry.Recorder // nil discards telemetry
	Logger    zerolog.Logger

	// BaseAsset is the output side of every swap.
	BaseAsset common.Address

	// SlippagePct is the price impact ceiling in percent, carried into
	// quoting and execution.
	SlippagePct decimal.Decimal

	// MaxGasPrice is the wei ceiling orders carry into execution. nil
	// means no order-level ceiling.
	MaxGasPrice *big.Int

	// DeferInterval is how long a deferred event waits before it
	// re-enters validation. Defaults to 10s.
	DeferInterval time.Duration
}

// AutoSwap converts every asset event that survives validation into a swap
// to the base asset. Each event runs as its own round; a newer event for
// the same key supersedes a round that has not yet committed to an order.
type AutoSwap struct {
	validator AssetValidator
	quotes    QuoteSource
	executor  OrderExecutor
	rate      NativeRater
	processed storage.ProcessedEventStore
	receipts  storage.ReceiptStore
	recorder  telemetry.Recorder
	log       zerolog.Logger

	baseAsset     common.Address
	slippagePct   decimal.Decimal
	maxGasPrice   *big.Int
	deferInterval time.Duration

	mu     sync.Mutex
	rounds map[string]*round
	wg     sync.WaitGroup
}

// round is one event being worked. It stays supersedable until it commits
// to an order.
type round struct {
	cancel    context.CancelFunc
	committed bool // guarded by AutoSwap.mu
}

// NewAutoSwap validates the wiring.
func NewAutoSwap(cfg AutoSwapConfig) (*AutoSwap, error) {
	if cfg.Validator == nil {
		return nil, fmt.Errorf("%w: auto-swap needs a validator", domain.ErrInvalidConfig)
	}
	if cfg.Quotes == nil {
		return nil, fmt.Errorf("%w: auto-swap needs a quote source", domain.ErrInvalidConfig)
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: auto-swap needs an executor", domain.ErrInvalidConfig)
	}
	if cfg.Rate == nil {
		return nil, fmt.Errorf("%w: auto-swap needs a native rate source", domain.ErrInvalidConfig)
	}
	if cfg.Processed == nil {
		return nil, fmt.Errorf("%w: auto-swap needs the processed-event store", domain.ErrInvalidConfig)
	}
	if cfg.Receipts == nil {
		return nil, fmt.Errorf("%w: auto-swap needs the receipt store", domain.ErrInvalidConfig)
	}
	if cfg.BaseAsset == (common.Address{}) {
		return nil, fmt.Errorf("%w: auto-swap needs the base asset", domain.ErrInvalidConfig)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = telemetry.Nop{}
	}
	deferInterval := cfg.DeferInterval
	if deferInterval <= 0 {
		deferInterval = 10 * time.Second
	}

	return &AutoSwap{
		validator:     cfg.Validator,
		quotes:        cfg.Quotes,
		executor:      cfg.Executor,
		rate:          cfg.Rate,
		processed:     cfg.Processed,
		receipts:      cfg.Receipts,
		recorder:      recorder,
		log:           cfg.Logger.With().Str("component", "autoswap").Logger(),
		baseAsset:     cfg.BaseAsset,
		slippagePct:   cfg.SlippagePct,
		maxGasPrice:   cfg.MaxGasPrice,
		deferInterval: deferInterval,
		rounds:        make(map[string]*round),
	}, nil
}

// Run consumes events until the channel closes or ctx is cancelled, then
// waits for in-progress rounds to finish.
func (a *AutoSwap) Run(ctx context.Context, events <-chan domain.AssetEvent) {
	a.log.Info().Str("base_asset", a.baseAsset.Hex()).Msg("auto-swap pipeline started")
	defer a.log.Info().Msg("auto-swap pipeline stopped")

	for {
		select {
		case <-ctx.Done():
			a.wg.Wait()
			return
		case ev, ok := <-events:
			if !ok {
				a.wg.Wait()
				return
			}
			a.dispatch(ctx, ev)
		}
	}
}

// dispatch starts a round for the event. A still-pending round for the
// same key is superseded; a round that already committed to an order
// suppresses the newcomer instead, and the next balance change re-emits.
func (a *AutoSwap) dispatch(ctx context.Context, ev domain.AssetEvent) {
	key := ev.Key()

	a.mu.Lock()
	current, exists := a.rounds[key]
	if exists && current.committed {
		a.mu.Unlock()
		a.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventSuppressed,
			Wallet: ev.Wallet,
			Token:  ev.Asset.Token,
			Detail: "order already executing for key",
		})
		return
	}
	if exists {
		current.cancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	rd := &round{cancel: cancel}
	a.rounds[key] = rd
	a.mu.Unlock()

	if exists {
		a.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventSuppressed,
			Wallet: ev.Wallet,
			Token:  ev.Asset.Token,
			Detail: "superseded by newer observation",
		})
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		defer a.finish(key, rd)
		a.runRound(rctx, ev, rd)
	}()
}

// finish clears the round's registration unless a newer round replaced it.
func (a *AutoSwap) finish(key string, rd *round) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rounds[key] == rd {
		delete(a.rounds, key)
	}
}

// commit makes the round immune to supersession. It fails when a newer
// event already replaced the round.
func (a *AutoSwap) commit(key string, rd *round) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rounds[key] != rd {
		return false
	}
	rd.committed = true
	return true
}

// runRound takes one event from validation to its terminal outcome.
// Superseded rounds return silently; their replacement owns the key.
func (a *AutoSwap) runRound(ctx context.Context, ev domain.AssetEvent, rd *round) {
	log := a.log.With().
		Str("token", ev.Asset.Token.Hex()).
		Str("symbol", ev.Asset.Symbol).
		Str("balance", amountText(ev.Asset.Balance)).
		Logger()

	// Deferred events wait out the interval and re-enter until a terminal
	// verdict, supersession, or shutdown.
	for {
		d := a.validator.EvaluateAsset(ctx, ev)
		if d.Accepted() {
			break
		}
		if ctx.Err() != nil {
			return
		}
		if d.Rejected() {
			a.record(ctx, domain.ExecutionEvent{
				Kind:   domain.EventRejected,
				Wallet: ev.Wallet,
				Token:  ev.Asset.Token,
				Detail: d.Reason,
			})
			return
		}
		a.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventDeferred,
			Wallet: ev.Wallet,
			Token:  ev.Asset.Token,
			Detail: d.Reason,
		})
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.deferInterval):
		}
	}
	a.record(ctx, domain.ExecutionEvent{
		Kind:     domain.EventAccepted,
		Wallet:   ev.Wallet,
		Token:    ev.Asset.Token,
		AmountIn: amountText(ev.Asset.Balance),
	})

	rate, err := a.rate.NativeOutputRate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventNoQuote,
			Wallet: ev.Wallet,
			Token:  ev.Asset.Token,
			Detail: fmt.Sprintf("native output rate: %v", err),
		})
		log.Warn().Err(err).Msg("native output rate unavailable, event dropped")
		return
	}

	quote, err := a.quotes.BestQuote(ctx, quoting.Request{
		Wallet:           ev.Wallet,
		TokenIn:          ev.Asset.Token,
		TokenOut:         a.baseAsset,
		AmountIn:         ev.Asset.Balance,
		SlippagePct:      a.slippagePct,
		NativeOutputRate: rate,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventNoQuote,
			Wallet: ev.Wallet,
			Token:  ev.Asset.Token,
			Detail: err.Error(),
		})
		log.Warn().Err(err).Msg("no viable quote, event dropped")
		return
	}
	a.record(ctx, domain.ExecutionEvent{
		Kind:       domain.EventQuoted,
		Wallet:     ev.Wallet,
		Token:      ev.Asset.Token,
		Aggregator: quote.Aggregator,
		AmountIn:   amountText(quote.AmountIn),
		AmountOut:  amountText(quote.ExpectedOut),
	})

	// Committing closes the supersession window; the round owns the key
	// through its terminal outcome.
	if !a.commit(ev.Key(), rd) {
		return
	}

	// Cross-process and restart guard: whichever path inserts the
	// processed row first owns the event.
	if err := a.processed.Insert(ctx, ev.ID, ev.ObservedAt); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			a.record(ctx, domain.ExecutionEvent{
				Kind:   domain.EventSuppressed,
				Wallet: ev.Wallet,
				Token:  ev.Asset.Token,
				Detail: "event already processed",
			})
			return
		}
		a.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventFailed,
			Wallet: ev.Wallet,
			Token:  ev.Asset.Token,
			Detail: fmt.Sprintf("processed-event guard unavailable: %v", err),
		})
		observability.RecordDBError("processed_events", "insert")
		log.Error().Err(err).Msg("processed-event guard unavailable, event dropped")
		return
	}

	a.execute(ctx, domain.SwapOrder{
		ID:                uuid.New(),
		Wallet:            ev.Wallet,
		Quote:             quote,
		SlippageTolerance: a.slippagePct,
		MaxGasPrice:       a.maxGasPrice,
		CreatedAt:         time.Now(),
	})
}

// execute runs the order and lands its receipt in storage and telemetry.
func (a *AutoSwap) execute(ctx context.Context, order domain.SwapOrder) {
	receipt, err := a.executor.Execute(ctx, order)
	if errors.Is(err, domain.ErrAlreadyInFlight) {
		// The duplicate never ran, so no receipt exists.
		a.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventSuppressed,
			Wallet: order.Wallet,
			Token:  order.Quote.TokenIn,
			Detail: err.Error(),
		})
		return
	}

	if receipt.Submitted() {
		a.record(ctx, domain.ExecutionEvent{
			Kind:       domain.EventSubmitted,
			Wallet:     receipt.Wallet,
			Token:      receipt.TokenIn,
			Aggregator: receipt.Aggregator,
			TxHash:     receipt.TxHash,
			AmountIn:   amountText(receipt.AmountIn),
		})
	}
	a.store(ctx, &receipt)

	event := domain.ExecutionEvent{
		Wallet:     receipt.Wallet,
		Token:      receipt.TokenIn,
		Aggregator: receipt.Aggregator,
		TxHash:     receipt.TxHash,
		AmountIn:   amountText(receipt.AmountIn),
		Detail:     receipt.FailureReason,
	}
	switch {
	case receipt.Success:
		event.Kind = domain.EventExecuted
		event.AmountOut = amountText(receipt.RealizedOut)
	case errors.Is(err, domain.ErrExecutionTimeout):
		event.Kind = domain.EventTimeout
	default:
		event.Kind = domain.EventFailed
	}
	a.record(ctx, event)
}

// store persists the receipt. Persistence failures are logged, not fatal:
// the swap already settled on-chain.
func (a *AutoSwap) store(ctx context.Context, receipt *domain.ExecutionReceipt) {
	if err := a.receipts.Insert(ctx, receipt); err != nil {
		observability.RecordDBError("receipts", "insert")
		a.log.Error().Err(err).
			Str("order_id", receipt.OrderID.String()).
			Msg("receipt not persisted")
	}
}

// record stamps and emits one telemetry event.
func (a *AutoSwap) record(ctx context.Context, event domain.ExecutionEvent) {
	event.Time = time.Now()
	a.recorder.Record(ctx, event)
}
