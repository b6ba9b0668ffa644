// Package quoting fans one swap out to every configured aggregator and
// selects the winning quote by net output.
package quoting

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"evm-swap-bot/internal/aggregator"
	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/observability"
)

// GasPricer supplies the current gas price for net-output accounting.
// *evm.HTTPClient satisfies this.
type GasPricer interface {
	GetGasPrice(ctx context.Context) (*big.Int, error)
}

// Request describes one quoting round.
type Request struct {
	Wallet   common.Address
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int

	// SlippagePct is the price impact ceiling in percent. Quotes above it
	// are not viable.
	SlippagePct decimal.Decimal

	// NativeOutputRate converts native wei into raw output units so gas
	// cost can be subtracted from the expected output. 1 when the output
	// asset is the wrapped native token.
	NativeOutputRate decimal.Decimal
}

// Broker queries every aggregator in parallel and picks the quote with the
// highest net output (expected output minus gas cost in output units).
// Ties go to the lower price impact, then to the earlier aggregator in the
// configured order.
type Broker struct {
	aggregators []aggregator.Aggregator // slice order is the tie-break priority
	gas         GasPricer
	apiTimeout  time.Duration
	requotes    int
	log         zerolog.Logger
	now         func() time.Time
}

// Option configures a Broker.
type Option func(*Broker)

// WithAPITimeout bounds each individual aggregator query.
func WithAPITimeout(d time.Duration) Option {
	return func(b *Broker) {
		b.apiTimeout = d
	}
}

// WithRequoteAttempts sets how many extra rounds run when the winning
// quote expires before it can be used.
func WithRequoteAttempts(n int) Option {
	return func(b *Broker) {
		b.requotes = n
	}
}

// WithClock overrides the expiry clock.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		b.now = now
	}
}

// New creates a Broker over the given venues, in priority order.
func New(aggs []aggregator.Aggregator, gas GasPricer, log zerolog.Logger, opts ...Option) (*Broker, error) {
	if len(aggs) == 0 {
		return nil, fmt.Errorf("%w: zero aggregators configured", domain.ErrInvalidConfig)
	}
	b := &Broker{
		aggregators: aggs,
		gas:         gas,
		apiTimeout:  15 * time.Second,
		requotes:    2,
		log:         log.With().Str("component", "quoting").Logger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Venue returns the configured aggregator with the given name. The
// executor uses it to build the winning quote's transaction.
func (b *Broker) Venue(name string) (aggregator.Aggregator, bool) {
	for _, agg := range b.aggregators {
		if agg.Name() == name {
			return agg, true
		}
	}
	return nil, false
}

// BestQuote runs quoting rounds until one yields a usable winner. A winner
// that expired before it could be returned triggers a re-quote round, at
// most requote_attempts extra times.
func (b *Broker) BestQuote(ctx context.Context, req Request) (domain.Quote, error) {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return domain.Quote{}, fmt.Errorf("quote amount must be positive")
	}
	if req.NativeOutputRate.Sign() <= 0 {
		return domain.Quote{}, fmt.Errorf("native output rate must be positive")
	}

	rounds := 1 + b.requotes
	for attempt := 0; attempt < rounds; attempt++ {
		winner, err := b.round(ctx, req)
		if err != nil {
			return domain.Quote{}, err
		}
		if !winner.Expired(b.now()) {
			return winner, nil
		}
		observability.RecordQuoteRound("expired")
		b.log.Warn().
			Str("aggregator", winner.Aggregator).
			Int("attempt", attempt+1).
			Msg("winning quote expired before use, requoting")
	}
	return domain.Quote{}, fmt.Errorf("%w: winner expired in %d consecutive rounds", domain.ErrNoViableQuote, rounds)
}

type result struct {
	quote domain.Quote
	err   error
}

// round performs one parallel fan-out and selection. An aggregator that
// errors or times out sits the round out; the round itself fails only when
// no viable quote remains.
func (b *Broker) round(ctx context.Context, req Request) (domain.Quote, error) {
	gasPrice, err := b.gas.GetGasPrice(ctx)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("gas price: %w", err)
	}

	results := make([]result, len(b.aggregators))
	var wg sync.WaitGroup
	for i, agg := range b.aggregators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = b.query(ctx, agg, req)
		}()
	}
	wg.Wait()

	// results order follows the aggregator priority order, so keeping the
	// first of any exact tie below resolves ties by priority.
	viable := make([]domain.Quote, 0, len(results))
	succeeded := 0
	for _, r := range results {
		if r.err != nil {
			continue
		}
		succeeded++
		if r.quote.PriceImpact.GreaterThan(req.SlippagePct) {
			b.log.Debug().
				Str("aggregator", r.quote.Aggregator).
				Str("price_impact", r.quote.PriceImpact.String()).
				Str("ceiling", req.SlippagePct.String()).
				Msg("quote above impact ceiling")
			continue
		}
		viable = append(viable, r.quote)
	}

	if len(viable) == 0 {
		if succeeded > 0 {
			observability.RecordQuoteRound("impact_ceiling")
			return domain.Quote{}, fmt.Errorf("%w: all %d quotes above %s%% price impact",
				domain.ErrNoViableQuote, succeeded, req.SlippagePct)
		}
		observability.RecordQuoteRound("no_quotes")
		return domain.Quote{}, fmt.Errorf("%w: 0 of %d aggregators answered",
			domain.ErrNoViableQuote, len(b.aggregators))
	}

	best := viable[0]
	bestNet := best.NetOutput(gasPrice, req.NativeOutputRate)
	for _, q := range viable[1:] {
		net := q.NetOutput(gasPrice, req.NativeOutputRate)
		switch net.Cmp(bestNet) {
		case 1:
			best, bestNet = q, net
		case 0:
			if q.PriceImpact.LessThan(best.PriceImpact) {
				best, bestNet = q, net
			}
		}
	}

	observability.RecordQuoteRound("selected")
	b.log.Info().
		Str("aggregator", best.Aggregator).
		Str("expected_out", best.ExpectedOut.String()).
		Str("net_output", bestNet.String()).
		Str("price_impact", best.PriceImpact.String()).
		Int("viable", len(viable)).
		Int("queried", len(b.aggregators)).
		Msg("quote selected")
	return best, nil
}

func (b *Broker) query(ctx context.Context, agg aggregator.Aggregator, req Request) result {
	qctx, cancel := context.WithTimeout(ctx, b.apiTimeout)
	defer cancel()

	started := time.Now()
	quote, err := agg.GetQuote(qctx, aggregator.QuoteRequest{
		Wallet:      req.Wallet,
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		AmountIn:    req.AmountIn,
		SlippagePct: req.SlippagePct,
	})
	observability.RecordQuoteRequest(agg.Name(), time.Since(started).Seconds(), err)
	if err != nil {
		b.log.Debug().Err(err).Str("aggregator", agg.Name()).Msg("aggregator sat out the round")
		return result{err: err}
	}
	return result{quote: quote}
}
