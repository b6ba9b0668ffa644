package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"evm-swap-bot/internal/aggregator"
	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/evm"
	"evm-swap-bot/internal/observability"
)

// defaultGasLimit backstops orders whose venue returned no gas suggestion.
const defaultGasLimit = 500_000

// approveGasLimit is the fixed gas limit for ERC-20 approvals.
const approveGasLimit = 100_000

// ChainClient is the narrow RPC surface the executor uses. evm.Client
// satisfies it.
type ChainClient interface {
	GetAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	GetGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)
	SendRawTransaction(ctx context.Context, rawTx []byte) (common.Hash, error)
	GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*evm.TxReceipt, error)
}

// VenueSource resolves the winning venue by name. *quoting.Broker
// satisfies it.
type VenueSource interface {
	Venue(name string) (aggregator.Aggregator, bool)
}

// Signer signs fully-built transactions. *wallet.Wallet satisfies it.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Options wires an Executor.
type Options struct {
	Client   ChainClient
	Venues   VenueSource
	Signer   Signer
	Registry *Registry
	Logger   zerolog.Logger

	MaxRetries          int             // gas-bumped retries after the first submission
	GasMultiplier       decimal.Decimal // per-retry gas price factor
	ConfirmTimeout      time.Duration   // how long to wait for inclusion
	ConfirmPollInterval time.Duration   // receipt poll cadence
}

// Executor turns one SwapOrder into one ExecutionReceipt. Storage and
// telemetry belong to the calling pipeline; the executor only talks to the
// chain and the venue.
type Executor struct {
	client   ChainClient
	venues   VenueSource
	signer   Signer
	registry *Registry
	log      zerolog.Logger

	maxRetries          int
	gasMultiplier       decimal.Decimal
	confirmTimeout      time.Duration
	confirmPollInterval time.Duration
}

// New validates the wiring and applies defaults.
func New(opts Options) (*Executor, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: executor needs a chain client", domain.ErrInvalidConfig)
	}
	if opts.Venues == nil {
		return nil, fmt.Errorf("%w: executor needs a venue source", domain.ErrInvalidConfig)
	}
	if opts.Signer == nil {
		return nil, fmt.Errorf("%w: executor needs a signer", domain.ErrInvalidConfig)
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: executor needs the in-flight registry", domain.ErrInvalidConfig)
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	multiplier := opts.GasMultiplier
	if multiplier.LessThanOrEqual(decimal.NewFromInt(1)) {
		multiplier = decimal.NewFromFloat(1.2)
	}
	confirmTimeout := opts.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 5 * time.Minute
	}
	pollInterval := opts.ConfirmPollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	return &Executor{
		client:              opts.Client,
		venues:              opts.Venues,
		signer:              opts.Signer,
		registry:            opts.Registry,
		log:                 opts.Logger.With().Str("component", "executor").Logger(),
		maxRetries:          maxRetries,
		gasMultiplier:       multiplier,
		confirmTimeout:      confirmTimeout,
		confirmPollInterval: pollInterval,
	}, nil
}

// Execute claims the order key, revalidates, submits, and waits for
// confirmation. It returns exactly one receipt per executed order; out of
// the error taxonomy only ErrAlreadyInFlight comes without a receipt,
// because the duplicate order never ran.
func (e *Executor) Execute(ctx context.Context, order domain.SwapOrder) (domain.ExecutionReceipt, error) {
	key := order.Key()
	if err := e.registry.Acquire(key); err != nil {
		return domain.ExecutionReceipt{}, err
	}
	defer e.registry.Release(key)

	receipt := domain.ExecutionReceipt{
		OrderID:    order.ID,
		Wallet:     order.Wallet,
		TokenIn:    order.Quote.TokenIn,
		TokenOut:   order.Quote.TokenOut,
		Aggregator: order.Quote.Aggregator,
		AmountIn:   order.Quote.AmountIn,
	}

	// Pre-submit revalidation. Nothing has touched the chain yet, so a
	// violation aborts without partial state.
	if order.Quote.Expired(time.Now()) {
		return e.fail(receipt, domain.ErrExecutionFailed, "quote expired before submission")
	}
	gasPrice, err := e.client.GetGasPrice(ctx)
	if err != nil {
		return e.fail(receipt, domain.ErrExecutionFailed, fmt.Sprintf("gas price unavailable: %v", err))
	}
	if order.MaxGasPrice != nil && gasPrice.Cmp(order.MaxGasPrice) > 0 {
		return e.fail(receipt, domain.ErrExecutionFailed,
			fmt.Sprintf("gas price %s wei above %s wei ceiling", gasPrice, order.MaxGasPrice))
	}
	if order.Quote.PriceImpact.GreaterThan(order.SlippageTolerance) {
		return e.fail(receipt, domain.ErrExecutionFailed,
			fmt.Sprintf("price impact %s%% above %s%% tolerance", order.Quote.PriceImpact, order.SlippageTolerance))
	}

	venue, ok := e.venues.Venue(order.Quote.Aggregator)
	if !ok {
		return e.fail(receipt, domain.ErrExecutionFailed,
			fmt.Sprintf("aggregator %q not configured", order.Quote.Aggregator))
	}
	swapTx, err := venue.BuildSwapTransaction(ctx, aggregator.QuoteRequest{
		Wallet:      order.Wallet,
		TokenIn:     order.Quote.TokenIn,
		TokenOut:    order.Quote.TokenOut,
		AmountIn:    order.Quote.AmountIn,
		SlippagePct: order.SlippageTolerance,
	})
	if err != nil {
		return e.fail(receipt, domain.ErrExecutionFailed, fmt.Sprintf("build swap transaction: %v", err))
	}

	if err := e.ensureAllowance(ctx, order, swapTx, gasPrice); err != nil {
		return e.fail(receipt, domain.ErrExecutionFailed, err.Error())
	}

	txHash, err := e.submit(ctx, order, swapTx, gasPrice)
	if err != nil {
		return e.fail(receipt, domain.ErrExecutionFailed, err.Error())
	}
	receipt.TxHash = txHash

	confirmed, err := e.confirm(ctx, txHash)
	switch {
	case errors.Is(err, domain.ErrExecutionTimeout):
		return e.fail(receipt, domain.ErrExecutionTimeout,
			fmt.Sprintf("transaction %s unconfirmed after %s", txHash.Hex(), e.confirmTimeout))
	case err != nil:
		return e.fail(receipt, domain.ErrExecutionTimeout, fmt.Sprintf("confirmation interrupted: %v", err))
	}

	receipt.RealizedGasCost = confirmed.RealizedGasCost()
	if confirmed.Reverted() {
		return e.fail(receipt, domain.ErrExecutionFailed, "transaction reverted on-chain")
	}

	receipt.Success = true
	receipt.RealizedOut = evm.ParseTransferAmount(confirmed.Logs, order.Quote.TokenOut, order.Wallet)
	if receipt.RealizedOut == nil {
		e.log.Warn().Str("tx", txHash.Hex()).Msg("no output transfer in confirmed logs")
	}
	receipt.FinishedAt = time.Now()
	observability.RecordExecutionOutcome("executed")
	e.log.Info().
		Str("order_id", order.ID.String()).
		Str("tx", txHash.Hex()).
		Str("aggregator", order.Quote.Aggregator).
		Str("amount_in", bigString(order.Quote.AmountIn)).
		Str("realized_out", bigString(receipt.RealizedOut)).
		Str("gas_cost_wei", bigString(receipt.RealizedGasCost)).
		Msg("swap executed")
	return receipt, nil
}

// ensureAllowance checks the venue's spender allowance on the input token
// and, when it falls short of the sell amount, submits an approval and
// waits for its confirmation before the swap goes out. The approval covers
// twice the sell amount so a follow-up order on the same token skips the
// extra transaction.
func (e *Executor) ensureAllowance(ctx context.Context, order domain.SwapOrder, swapTx aggregator.SwapTransaction, gasPrice *big.Int) error {
	spender := swapTx.Spender
	if spender == (common.Address{}) {
		spender = swapTx.To
	}
	allowance, err := e.client.GetAllowance(ctx, order.Quote.TokenIn, order.Wallet, spender)
	if err != nil {
		return fmt.Errorf("read allowance: %v", err)
	}
	if allowance.Cmp(order.Quote.AmountIn) >= 0 {
		return nil
	}

	amount := new(big.Int).Lsh(order.Quote.AmountIn, 1)
	nonce, err := e.client.PendingNonceAt(ctx, e.signer.Address())
	if err != nil {
		return fmt.Errorf("pending nonce for approval: %v", err)
	}
	token := order.Quote.TokenIn
	signed, err := e.signer.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &token,
		Value:    new(big.Int),
		Gas:      approveGasLimit,
		GasPrice: new(big.Int).Set(gasPrice),
		Data:     evm.ApproveCalldata(spender, amount),
	}))
	if err != nil {
		return fmt.Errorf("sign approval: %v", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode approval: %v", err)
	}
	txHash, err := e.client.SendRawTransaction(ctx, raw)
	if err != nil {
		return fmt.Errorf("submit approval: %v", err)
	}

	confirmed, err := e.confirm(ctx, txHash)
	if err != nil {
		return fmt.Errorf("approval %s unconfirmed: %v", txHash.Hex(), err)
	}
	if confirmed.Reverted() {
		return fmt.Errorf("approval %s reverted on-chain", txHash.Hex())
	}
	e.log.Info().
		Str("token", token.Hex()).
		Str("spender", spender.Hex()).
		Str("amount", amount.String()).
		Str("tx", txHash.Hex()).
		Msg("allowance approved")
	return nil
}

// submit signs and sends the transaction, bumping the gas price on each
// transient failure. The same pending nonce is re-read per attempt so a
// lost nonce race starts clean.
func (e *Executor) submit(ctx context.Context, order domain.SwapOrder, swapTx aggregator.SwapTransaction, gasPrice *big.Int) (common.Hash, error) {
	gasLimit := swapTx.Gas
	if gasLimit == 0 {
		gasLimit = order.Quote.EstimatedGas
	}
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	value := swapTx.Value
	if value == nil {
		value = new(big.Int)
	}
	to := swapTx.To

	price := new(big.Int).Set(gasPrice)
	for attempt := 0; ; attempt++ {
		nonce, err := e.client.PendingNonceAt(ctx, e.signer.Address())
		if err != nil {
			return common.Hash{}, fmt.Errorf("pending nonce: %v", err)
		}
		signed, err := e.signer.SignTx(types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Value:    value,
			Gas:      gasLimit,
			GasPrice: price,
			Data:     swapTx.Data,
		}))
		if err != nil {
			return common.Hash{}, fmt.Errorf("sign transaction: %v", err)
		}
		raw, err := signed.MarshalBinary()
		if err != nil {
			return common.Hash{}, fmt.Errorf("encode transaction: %v", err)
		}

		hash, err := e.client.SendRawTransaction(ctx, raw)
		if err == nil {
			return hash, nil
		}
		if alreadyKnownError(err) {
			// The pool has it from an attempt whose response was lost.
			return signed.Hash(), nil
		}
		if !transientSubmitError(err) {
			return common.Hash{}, fmt.Errorf("submit transaction: %v", err)
		}
		if attempt >= e.maxRetries {
			return common.Hash{}, fmt.Errorf("submission retries exhausted: %v", err)
		}
		if ctx.Err() != nil {
			return common.Hash{}, fmt.Errorf("submit transaction: %v", ctx.Err())
		}

		price = bumpGasPrice(price, e.gasMultiplier)
		if order.MaxGasPrice != nil && price.Cmp(order.MaxGasPrice) > 0 {
			return common.Hash{}, fmt.Errorf("gas bump %s wei above %s wei ceiling", price, order.MaxGasPrice)
		}
		observability.RecordExecutionRetry()
		e.log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("gas_price", price.String()).
			Msg("submission retry with higher gas")
	}
}

// confirm polls for the receipt until it appears or the window closes.
func (e *Executor) confirm(ctx context.Context, txHash common.Hash) (*evm.TxReceipt, error) {
	deadline := time.NewTimer(e.confirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.confirmPollInterval)
	defer ticker.Stop()

	started := time.Now()
	for {
		receipt, err := e.client.GetTransactionReceipt(ctx, txHash)
		if err != nil {
			e.log.Debug().Err(err).Str("tx", txHash.Hex()).Msg("receipt poll failed")
		} else if receipt != nil {
			observability.RecordConfirmLatency(time.Since(started).Seconds())
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, domain.ErrExecutionTimeout
		case <-ticker.C:
		}
	}
}

func (e *Executor) fail(receipt domain.ExecutionReceipt, sentinel error, reason string) (domain.ExecutionReceipt, error) {
	receipt.Success = false
	receipt.FailureReason = reason
	receipt.FinishedAt = time.Now()

	outcome := "failed"
	if errors.Is(sentinel, domain.ErrExecutionTimeout) {
		outcome = "timeout"
	}
	observability.RecordExecutionOutcome(outcome)
	e.log.Warn().
		Str("order_id", receipt.OrderID.String()).
		Str("token_in", receipt.TokenIn.Hex()).
		Str("reason", reason).
		Msg("execution failed")
	return receipt, fmt.Errorf("%w: %s", sentinel, reason)
}

// bumpGasPrice applies the retry multiplier, always moving up at least one
// wei so a replacement is never equal-priced.
func bumpGasPrice(price *big.Int, multiplier decimal.Decimal) *big.Int {
	bumped := decimal.NewFromBigInt(price, 0).Mul(multiplier).BigInt()
	if bumped.Cmp(price) <= 0 {
		bumped = new(big.Int).Add(price, big.NewInt(1))
	}
	return bumped
}

// transientSubmitError reports whether a submission failure is worth a
// higher-gas retry. Geth and its forks signal these in plain strings.
func transientSubmitError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"underpriced",
		"nonce too low",
		"replacement transaction",
		"future transaction",
		"connection",
		"timeout",
		"temporarily",
		"eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func alreadyKnownError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
