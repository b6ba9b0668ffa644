package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/observability"
	"evm-swap-bot/internal/pricing"
	"evm-swap-bot/internal/quoting"
	"evm-swap-bot/internal/sniper"
	"evm-swap-bot/internal/storage"
	"evm-swap-bot/internal/telemetry"
)

// BalanceReader reads the wallet's token balance at trigger time.
// evm.Client satisfies this.
type BalanceReader interface {
	GetTokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// MetadataReader supplies symbol and decimals for the sell snapshot.
// *tokencache.Cache and evm.Client satisfy this.
type MetadataReader interface {
	GetTokenMetadata(ctx context.Context, token common.Address) (domain.TokenMetadata, error)
}

// PairPricer values the pool's paired asset in USD. pricing.Source
// satisfies this.
type PairPricer interface {
	TokenMarket(ctx context.Context, token common.Address) (pricing.Market, error)
	NativePriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// SniperConfig wires a Sniper runner.
type SniperConfig struct {
	Tracker   *sniper.Tracker
	Validator PoolValidator
	Quotes    QuoteSource
	Executor  OrderExecutor
	Rate      NativeRater
	Balances  BalanceReader
	Metadata  MetadataReader
	Prices    PairPricer
	Receipts  storage.ReceiptStore
	Recorder  telemetry.Recorder // nil discards telemetry
	Logger    zerolog.Logger

	// Wallet holds the monitored token and receives the sell output.
	Wallet common.Address

	// BaseAsset is the output side of the sell.
	BaseAsset common.Address

	// PairedDecimals is the decimals of the pool's paired asset, 18 for
	// the wrapped native token.
	PairedDecimals uint8

	// SlippagePct is the price impact ceiling in percent.
	SlippagePct decimal.Decimal

	// MaxGasPrice is the wei ceiling orders carry into execution. nil
	// means no order-level ceiling.
	MaxGasPrice *big.Int
}

// Sniper drives the liquidity trigger machine for one monitored token and
// sells the wallet's balance into the pool once the trigger confirms.
// Events are handled strictly in order; the machine is one-shot, so the
// runner returns once it closes.
type Sniper struct {
	tracker   *sniper.Tracker
	validator PoolValidator
	quotes    QuoteSource
	executor  OrderExecutor
	rate      NativeRater
	balances  BalanceReader
	metadata  MetadataReader
	prices    PairPricer
	receipts  storage.ReceiptStore
	recorder  telemetry.Recorder
	log       zerolog.Logger

	wallet         common.Address
	baseAsset      common.Address
	pairedDecimals uint8
	slippagePct    decimal.Decimal
	maxGasPrice    *big.Int

	// timedOut marks that one confirmation timeout has been spent. The
	// next tick earns one further attempt only while the threshold holds;
	// a second timeout aborts.
	timedOut bool
}

// NewSniper validates the wiring.
func NewSniper(cfg SniperConfig) (*Sniper, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("%w: sniper needs the trigger tracker", domain.ErrInvalidConfig)
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("%w: sniper needs a validator", domain.ErrInvalidConfig)
	}
	if cfg.Quotes == nil {
		return nil, fmt.Errorf("%w: sniper needs a quote source", domain.ErrInvalidConfig)
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: sniper needs an executor", domain.ErrInvalidConfig)
	}
	if cfg.Rate == nil {
		return nil, fmt.Errorf("%w: sniper needs a native rate source", domain.ErrInvalidConfig)
	}
	if cfg.Balances == nil {
		return nil, fmt.Errorf("%w: sniper needs a balance reader", domain.ErrInvalidConfig)
	}
	if cfg.Metadata == nil {
		return nil, fmt.Errorf("%w: sniper needs a metadata reader", domain.ErrInvalidConfig)
	}
	if cfg.Prices == nil {
		return nil, fmt.Errorf("%w: sniper needs a price source", domain.ErrInvalidConfig)
	}
	if cfg.Receipts == nil {
		return nil, fmt.Errorf("%w: sniper needs the receipt store", domain.ErrInvalidConfig)
	}
	if cfg.Wallet == (common.Address{}) {
		return nil, fmt.Errorf("%w: sniper needs the wallet address", domain.ErrInvalidConfig)
	}
	if cfg.BaseAsset == (common.Address{}) {
		return nil, fmt.Errorf("%w: sniper needs the base asset", domain.ErrInvalidConfig)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = telemetry.Nop{}
	}

	return &Sniper{
		tracker:   cfg.Tracker,
		validator: cfg.Validator,
		quotes:    cfg.Quotes,
		executor:  cfg.Executor,
		rate:      cfg.Rate,
		balances:  cfg.Balances,
		metadata:  cfg.Metadata,
		prices:    cfg.Prices,
		receipts:  cfg.Receipts,
		recorder:  recorder,
		log: cfg.Logger.With().
			Str("component", "sniper-pipeline").
			Str("token", cfg.Tracker.Token().Hex()).
			Logger(),
		wallet:         cfg.Wallet,
		baseAsset:      cfg.BaseAsset,
		pairedDecimals: cfg.PairedDecimals,
		slippagePct:    cfg.SlippagePct,
		maxGasPrice:    cfg.MaxGasPrice,
	}, nil
}

// Run consumes pool events until the machine closes, the channel closes,
// or ctx is cancelled.
func (s *Sniper) Run(ctx context.Context, events <-chan domain.PoolEvent) {
	s.log.Info().Msg("sniper pipeline started")
	defer s.log.Info().Msg("sniper pipeline stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ctx, ev)
			if state := s.tracker.State(); state.Terminal() {
				s.log.Info().Str("state", string(state)).Msg("trigger machine closed")
				return
			}
		}
	}
}

// handle applies one monitoring tick and runs the sell round while the
// machine is triggered.
func (s *Sniper) handle(ctx context.Context, ev domain.PoolEvent) {
	state := s.tracker.Observe(ev.Snapshot, s.reserveValueUSD(ctx, ev.Snapshot))
	if state != sniper.StateTriggered {
		return
	}

	if s.timedOut && !s.tracker.ThresholdHolds() {
		s.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventFailed,
			Wallet: s.wallet,
			Token:  ev.Snapshot.Token,
			Detail: "liquidity receded after confirmation timeout",
		})
		s.abort("liquidity receded after confirmation timeout")
		return
	}
	s.sell(ctx, ev)
}

// reserveValueUSD prices the pool's liquidity in USD: the paired-side
// value doubled, the balanced-pool convention. An unpriceable tick values
// at zero, which never qualifies.
func (s *Sniper) reserveValueUSD(ctx context.Context, snap domain.PoolSnapshot) decimal.Decimal {
	market, err := s.prices.TokenMarket(ctx, snap.Paired)
	if err != nil {
		s.log.Warn().Err(err).Msg("paired asset price unavailable, tick valued at zero")
		return decimal.Zero
	}
	price := market.PriceUSD
	if !price.IsPositive() {
		// The paired side is the chain's wrapped native asset, so the
		// native anchor price covers pools too fresh for a listed market.
		price, err = s.prices.NativePriceUSD(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("native price unavailable, tick valued at zero")
			return decimal.Zero
		}
	}
	paired := domain.ToHuman(snap.PairedReserve, s.pairedDecimals)
	return paired.Mul(price).Mul(decimal.NewFromInt(2))
}

// sell runs one trigger-time sell round: balance snapshot, validation,
// quote, execution. Transient failures leave the machine triggered so the
// next tick retries; terminal outcomes close it.
func (s *Sniper) sell(ctx context.Context, ev domain.PoolEvent) {
	token := ev.Snapshot.Token

	balance, err := s.balances.GetTokenBalance(ctx, token, s.wallet)
	if err != nil {
		s.log.Warn().Err(err).Msg("balance read failed, retrying next tick")
		return
	}
	if balance == nil || balance.Sign() <= 0 {
		s.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventRejected,
			Wallet: s.wallet,
			Token:  token,
			Detail: "wallet holds none of the monitored token",
		})
		s.abort("wallet holds none of the monitored token")
		return
	}
	meta, err := s.metadata.GetTokenMetadata(ctx, token)
	if err != nil {
		s.log.Warn().Err(err).Msg("metadata probe failed, retrying next tick")
		return
	}

	d := s.validator.EvaluatePool(ctx, ev, domain.WalletAsset{
		Token:    token,
		Symbol:   meta.Symbol,
		Balance:  balance,
		Decimals: meta.Decimals,
	})
	switch {
	case d.Rejected():
		s.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventRejected,
			Wallet: s.wallet,
			Token:  token,
			Detail: d.Reason,
		})
		s.abort(d.Reason)
		return
	case d.Deferred():
		s.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventDeferred,
			Wallet: s.wallet,
			Token:  token,
			Detail: d.Reason,
		})
		return
	}
	s.record(ctx, domain.ExecutionEvent{
		Kind:     domain.EventAccepted,
		Wallet:   s.wallet,
		Token:    token,
		AmountIn: amountText(balance),
	})

	rate, err := s.rate.NativeOutputRate(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("native output rate unavailable, retrying next tick")
		return
	}

	quote, err := s.quotes.BestQuote(ctx, quoting.Request{
		Wallet:           s.wallet,
		TokenIn:          token,
		TokenOut:         s.baseAsset,
		AmountIn:         balance,
		SlippagePct:      s.slippagePct,
		NativeOutputRate: rate,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventNoQuote,
			Wallet: s.wallet,
			Token:  token,
			Detail: err.Error(),
		})
		s.log.Warn().Err(err).Msg("no viable quote at trigger, retrying next tick")
		return
	}
	s.record(ctx, domain.ExecutionEvent{
		Kind:       domain.EventQuoted,
		Wallet:     s.wallet,
		Token:      token,
		Aggregator: quote.Aggregator,
		AmountIn:   amountText(quote.AmountIn),
		AmountOut:  amountText(quote.ExpectedOut),
	})

	receipt, err := s.executor.Execute(ctx, domain.SwapOrder{
		ID:                uuid.New(),
		Wallet:            s.wallet,
		Quote:             quote,
		SlippageTolerance: s.slippagePct,
		MaxGasPrice:       s.maxGasPrice,
		CreatedAt:         time.Now(),
	})
	if errors.Is(err, domain.ErrAlreadyInFlight) {
		s.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventSuppressed,
			Wallet: s.wallet,
			Token:  token,
			Detail: err.Error(),
		})
		return
	}

	if receipt.Submitted() {
		s.record(ctx, domain.ExecutionEvent{
			Kind:       domain.EventSubmitted,
			Wallet:     receipt.Wallet,
			Token:      receipt.TokenIn,
			Aggregator: receipt.Aggregator,
			TxHash:     receipt.TxHash,
			AmountIn:   amountText(receipt.AmountIn),
		})
	}
	s.store(ctx, &receipt)

	switch {
	case receipt.Success:
		s.record(ctx, domain.ExecutionEvent{
			Kind:       domain.EventExecuted,
			Wallet:     receipt.Wallet,
			Token:      receipt.TokenIn,
			Aggregator: receipt.Aggregator,
			TxHash:     receipt.TxHash,
			AmountIn:   amountText(receipt.AmountIn),
			AmountOut:  amountText(receipt.RealizedOut),
		})
		if err := s.tracker.MarkExecuted(); err != nil {
			s.log.Error().Err(err).Msg("executed transition rejected")
		}
	case errors.Is(err, domain.ErrExecutionTimeout):
		s.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventTimeout,
			Wallet: receipt.Wallet,
			Token:  receipt.TokenIn,
			TxHash: receipt.TxHash,
			Detail: receipt.FailureReason,
		})
		if s.timedOut {
			s.abort("confirmation timed out twice")
			return
		}
		s.timedOut = true
		s.log.Warn().Msg("confirmation timed out, one retry allowed while the threshold holds")
	default:
		s.record(ctx, domain.ExecutionEvent{
			Kind:   domain.EventFailed,
			Wallet: receipt.Wallet,
			Token:  receipt.TokenIn,
			TxHash: receipt.TxHash,
			Detail: receipt.FailureReason,
		})
		s.abort(receipt.FailureReason)
	}
}

// abort closes the machine. The terminal reason was already recorded at
// its point of origin.
func (s *Sniper) abort(reason string) {
	if err := s.tracker.MarkAborted(reason); err != nil {
		s.log.Error().Err(err).Msg("abort transition rejected")
	}
}

// store persists the receipt. Persistence failures are logged, not fatal:
// the swap already settled on-chain.
func (s *Sniper) store(ctx context.Context, receipt *domain.ExecutionReceipt) {
	if err := s.receipts.Insert(ctx, receipt); err != nil {
		observability.RecordDBError("receipts", "insert")
		s.log.Error().Err(err).
			Str("order_id", receipt.OrderID.String()).
			Msg("receipt not persisted")
	}
}

// record stamps and emits one telemetry event.
func (s *Sniper) record(ctx context.Context, event domain.ExecutionEvent) {
	event.Time = time.Now()
	s.recorder.Record(ctx, event)
}
