package aggregator

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"evm-swap-bot/internal/domain"
)

// Canonical venue names. Configuration refers to venues by these.
const (
	NameOneInch = "1inch"
	NameZeroX   = "0x"
	NameUniswap = "uniswap"
	NameOKX     = "okx"
)

// QuoteRequest describes one exact-in swap to quote or build.
type QuoteRequest struct {
	Wallet      common.Address  // taker, receives the output
	TokenIn     common.Address  // asset being sold
	TokenOut    common.Address  // asset being bought
	AmountIn    *big.Int        // raw input units
	SlippagePct decimal.Decimal // percent, 0.5 means 0.5%
}

// SwapTransaction is the unsigned call an aggregator routes through its
// own contracts. The executor signs and submits it verbatim.
type SwapTransaction struct {
	To           common.Address
	Data         []byte
	Value        *big.Int       // wei sent along with the call
	Gas          uint64         // venue's gas limit suggestion
	MinAmountOut *big.Int       // venue-enforced floor after slippage
	Spender      common.Address // contract needing the input-token allowance; zero means To
}

// Aggregator is one swap-routing venue. Implementations are safe for
// concurrent use; errors mean this venue sits out the current round.
type Aggregator interface {
	// Name returns the canonical venue name.
	Name() string

	// GetQuote prices the swap without committing to it.
	GetQuote(ctx context.Context, req QuoteRequest) (domain.Quote, error)

	// BuildSwapTransaction returns the unsigned transaction executing
	// the swap at the venue's current routing.
	BuildSwapTransaction(ctx context.Context, req QuoteRequest) (SwapTransaction, error)
}

// Config carries the settings shared by every venue constructor.
type Config struct {
	BaseURL  string        // empty selects the venue's public endpoint
	APIKey   string        // empty where the venue needs none
	ChainID  uint64        // EVM chain id the venue should route on
	Timeout  time.Duration // per-request HTTP timeout
	QuoteTTL time.Duration // validity window stamped onto quotes
}

func (c Config) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (c Config) ttl() time.Duration {
	if c.QuoteTTL <= 0 {
		return 15 * time.Second
	}
	return c.QuoteTTL
}

// New returns the venue client for a canonical name.
func New(name string, cfg Config) (Aggregator, error) {
	switch name {
	case NameOneInch:
		return NewOneInch(cfg), nil
	case NameZeroX:
		return NewZeroX(cfg), nil
	case NameUniswap:
		return NewUniswap(cfg), nil
	case NameOKX:
		return NewOKX(cfg), nil
	}
	return nil, fmt.Errorf("unknown aggregator %q", name)
}
