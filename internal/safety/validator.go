// Package safety decides whether a candidate event may proceed to quoting
// and execution.
package safety

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/observability"
	"evm-swap-bot/internal/pricing"
)

// Action is the verdict class of a validation decision.
type Action string

const (
	// Accept lets the event proceed to quoting.
	Accept Action = "ACCEPT"
	// RejectPermanent drops the event; it is never retried.
	RejectPermanent Action = "REJECT"
	// Defer re-enters the event on the next tick.
	Defer Action = "DEFER"
)

// Decision is the validator's verdict with its reason. Reason is empty for
// accepted events.
type Decision struct {
	Action Action
	Reason string
}

// Accepted reports whether the event may proceed.
func (d Decision) Accepted() bool { return d.Action == Accept }

// Rejected reports whether the event is permanently dropped.
func (d Decision) Rejected() bool { return d.Action == RejectPermanent }

// Deferred reports whether the event should re-enter on the next tick.
func (d Decision) Deferred() bool { return d.Action == Defer }

func accept() Decision {
	return Decision{Action: Accept}
}

func reject(format string, args ...any) Decision {
	return Decision{Action: RejectPermanent, Reason: fmt.Sprintf(format, args...)}
}

func deferral(format string, args ...any) Decision {
	return Decision{Action: Defer, Reason: fmt.Sprintf(format, args...)}
}

// PriceSource supplies USD market data. pricing.Source satisfies this.
type PriceSource interface {
	TokenMarket(ctx context.Context, token common.Address) (pricing.Market, error)
}

// MetadataProber answers contract capability probes. *tokencache.Cache
// and *evm.HTTPClient satisfy this.
type MetadataProber interface {
	GetTokenMetadata(ctx context.Context, token common.Address) (domain.TokenMetadata, error)
}

// GasPricer supplies the current gas price for the ceiling check.
type GasPricer interface {
	GetGasPrice(ctx context.Context) (*big.Int, error)
}

// Config carries the validator thresholds.
type Config struct {
	Blacklist []common.Address // never traded
	Whitelist []common.Address // when non-empty, only these are traded

	MinSellUSD   decimal.Decimal // value floor for any sell
	MaxGasPrice  *big.Int        // wei ceiling, breach defers
	MaxPoolShare decimal.Decimal // fraction of pool token reserve we may sell

	// MinLiquidityUSD defers events whose token market carries less
	// liquidity than this, until LiquidityCheck is off.
	MinLiquidityUSD decimal.Decimal
	LiquidityCheck  bool

	// SafeMode enables the blacklist/whitelist, contract probe and
	// pool-share checks. The value floor and gas ceiling always run.
	SafeMode bool
}

// Validator runs the safety checks. It is stateless and side-effect-free
// beside reads through its collaborators; collaborator failures defer the
// event rather than erroring.
type Validator struct {
	prices          PriceSource
	prober          MetadataProber
	gas             GasPricer
	blacklist       map[common.Address]struct{}
	whitelist       map[common.Address]struct{}
	minSellUSD      decimal.Decimal
	maxGasPrice     *big.Int
	maxPoolShare    decimal.Decimal
	minLiquidityUSD decimal.Decimal
	liquidityCheck  bool
	safeMode        bool
	log             zerolog.Logger
}

// New creates a Validator with the given collaborators and thresholds.
func New(prices PriceSource, prober MetadataProber, gas GasPricer, cfg Config, log zerolog.Logger) *Validator {
	blacklist := make(map[common.Address]struct{}, len(cfg.Blacklist))
	for _, addr := range cfg.Blacklist {
		blacklist[addr] = struct{}{}
	}
	whitelist := make(map[common.Address]struct{}, len(cfg.Whitelist))
	for _, addr := range cfg.Whitelist {
		whitelist[addr] = struct{}{}
	}
	return &Validator{
		prices:          prices,
		prober:          prober,
		gas:             gas,
		blacklist:       blacklist,
		whitelist:       whitelist,
		minSellUSD:      cfg.MinSellUSD,
		maxGasPrice:     cfg.MaxGasPrice,
		maxPoolShare:    cfg.MaxPoolShare,
		minLiquidityUSD: cfg.MinLiquidityUSD,
		liquidityCheck:  cfg.LiquidityCheck,
		safeMode:        cfg.SafeMode,
		log:             log.With().Str("component", "safety").Logger(),
	}
}

// EvaluateAsset decides whether a wallet asset event may be swapped.
func (v *Validator) EvaluateAsset(ctx context.Context, event domain.AssetEvent) Decision {
	token := event.Asset.Token

	if d, done := v.listCheck(token); done {
		return v.finish(token, d)
	}
	if d, done := v.valueCheck(ctx, token, event.Asset.Balance, event.Asset.Decimals); done {
		return v.finish(token, d)
	}
	if d, done := v.probeCheck(ctx, token); done {
		return v.finish(token, d)
	}
	if d, done := v.gasCheck(ctx); done {
		return v.finish(token, d)
	}
	return v.finish(token, accept())
}

// EvaluatePool decides whether a triggered liquidity event may be sold
// into. sell is the prospective sell, typically the wallet's full balance
// of the monitored token.
func (v *Validator) EvaluatePool(ctx context.Context, event domain.PoolEvent, sell domain.WalletAsset) Decision {
	token := sell.Token

	if d, done := v.listCheck(token); done {
		return v.finish(token, d)
	}
	if d, done := v.valueCheck(ctx, token, sell.Balance, sell.Decimals); done {
		return v.finish(token, d)
	}
	if d, done := v.probeCheck(ctx, token); done {
		return v.finish(token, d)
	}
	if d, done := v.poolShareCheck(event.Snapshot, sell.Balance); done {
		return v.finish(token, d)
	}
	if d, done := v.gasCheck(ctx); done {
		return v.finish(token, d)
	}
	return v.finish(token, accept())
}

func (v *Validator) listCheck(token common.Address) (Decision, bool) {
	if !v.safeMode {
		return Decision{}, false
	}
	if _, banned := v.blacklist[token]; banned {
		return reject("token %s blacklisted", token.Hex()), true
	}
	if len(v.whitelist) > 0 {
		if _, listed := v.whitelist[token]; !listed {
			return reject("token %s not whitelisted", token.Hex()), true
		}
	}
	return Decision{}, false
}

func (v *Validator) valueCheck(ctx context.Context, token common.Address, amount *big.Int, decimals uint8) (Decision, bool) {
	market, err := v.prices.TokenMarket(ctx, token)
	if err != nil {
		return deferral("price source unavailable: %v", err), true
	}

	// An unlisted token prices at zero, which lands below any floor.
	value := domain.ToHuman(amount, decimals).Mul(market.PriceUSD)
	if value.LessThan(v.minSellUSD) {
		return reject("asset value $%s below $%s floor", value.StringFixed(2), v.minSellUSD.StringFixed(2)), true
	}
	// Thin liquidity is deferred, not rejected: the market may still fill
	// out while the event re-enters each tick.
	if v.liquidityCheck && market.LiquidityUSD.LessThan(v.minLiquidityUSD) {
		return deferral("market liquidity $%s below $%s floor",
			market.LiquidityUSD.StringFixed(0), v.minLiquidityUSD.StringFixed(0)), true
	}
	return Decision{}, false
}

func (v *Validator) probeCheck(ctx context.Context, token common.Address) (Decision, bool) {
	if !v.safeMode {
		return Decision{}, false
	}

	meta, err := v.prober.GetTokenMetadata(ctx, token)
	if err != nil {
		return deferral("metadata probe unavailable: %v", err), true
	}
	if !meta.ProbeOK {
		return reject("contract failed capability probe"), true
	}
	if meta.Decimals > 36 {
		return reject("implausible decimals %d", meta.Decimals), true
	}
	if meta.TotalSupply == nil || meta.TotalSupply.Sign() <= 0 {
		return reject("zero total supply"), true
	}
	return Decision{}, false
}

func (v *Validator) poolShareCheck(snapshot domain.PoolSnapshot, sellAmount *big.Int) (Decision, bool) {
	if !v.safeMode {
		return Decision{}, false
	}
	if snapshot.TokenReserve == nil || snapshot.TokenReserve.Sign() <= 0 {
		return reject("pool holds no token reserve"), true
	}

	sell := decimal.NewFromBigInt(sellAmount, 0)
	limit := decimal.NewFromBigInt(snapshot.TokenReserve, 0).Mul(v.maxPoolShare)
	if sell.GreaterThan(limit) {
		share := sell.Div(decimal.NewFromBigInt(snapshot.TokenReserve, 0))
		return reject("sell amount is %s%% of pool reserve, limit %s%%",
			share.Mul(decimal.NewFromInt(100)).StringFixed(2),
			v.maxPoolShare.Mul(decimal.NewFromInt(100)).StringFixed(2)), true
	}
	return Decision{}, false
}

func (v *Validator) gasCheck(ctx context.Context) (Decision, bool) {
	gasPrice, err := v.gas.GetGasPrice(ctx)
	if err != nil {
		return deferral("gas price unavailable: %v", err), true
	}
	if v.maxGasPrice != nil && gasPrice.Cmp(v.maxGasPrice) > 0 {
		return deferral("gas price %s gwei above %s gwei ceiling",
			domain.WeiToGwei(gasPrice).StringFixed(1),
			domain.WeiToGwei(v.maxGasPrice).StringFixed(1)), true
	}
	return Decision{}, false
}

func (v *Validator) finish(token common.Address, d Decision) Decision {
	observability.RecordValidation(string(d.Action))
	if d.Action != Accept {
		v.log.Debug().
			Str("token", token.Hex()).
			Str("action", string(d.Action)).
			Str("reason", d.Reason).
			Msg("event did not pass validation")
	}
	return d
}
