package aggregator

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"evm-swap-bot/internal/domain"
)

// DefaultUniswapURL is the Uniswap routing API endpoint. No key needed.
const DefaultUniswapURL = "https://api.uniswap.org/v1"

// Uniswap routes swaps through the Uniswap auto-router.
type Uniswap struct {
	baseURL  string
	client   *http.Client
	quoteTTL time.Duration
}

// Compile-time interface check.
var _ Aggregator = (*Uniswap)(nil)

// NewUniswap creates a Uniswap routing client.
func NewUniswap(cfg Config) *Uniswap {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultUniswapURL
	}
	return &Uniswap{
		baseURL:  baseURL,
		client:   cfg.httpClient(),
		quoteTTL: cfg.ttl(),
	}
}

// Name returns the canonical venue name.
func (a *Uniswap) Name() string { return NameUniswap }

// GetQuote prices the swap via the auto-router.
func (a *Uniswap) GetQuote(ctx context.Context, req QuoteRequest) (domain.Quote, error) {
	q := url.Values{}
	q.Set("tokenInAddress", req.TokenIn.Hex())
	q.Set("tokenOutAddress", req.TokenOut.Hex())
	q.Set("amount", req.AmountIn.String())
	q.Set("type", "exactIn")

	var out struct {
		Quote       jsonBig     `json:"quote"`
		PriceImpact jsonDecimal `json:"priceImpact"`
	}
	if err := getJSON(ctx, a.client, NameUniswap, a.baseURL+"/quote", q, nil, &out); err != nil {
		return domain.Quote{}, err
	}
	if out.Quote.Int().Sign() == 0 {
		return domain.Quote{}, fmt.Errorf("uniswap: response carries no quote")
	}

	return domain.Quote{
		Aggregator:   NameUniswap,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     new(big.Int).Set(req.AmountIn),
		ExpectedOut:  out.Quote.Int(),
		EstimatedGas: defaultGasEstimate,
		PriceImpact:  out.PriceImpact.Decimal(),
		Expiry:       time.Now().Add(a.quoteTTL),
	}, nil
}

// BuildSwapTransaction fetches the routed transaction via /swap.
func (a *Uniswap) BuildSwapTransaction(ctx context.Context, req QuoteRequest) (SwapTransaction, error) {
	q := url.Values{}
	q.Set("tokenInAddress", req.TokenIn.Hex())
	q.Set("tokenOutAddress", req.TokenOut.Hex())
	q.Set("amount", req.AmountIn.String())
	q.Set("recipient", req.Wallet.Hex())
	q.Set("slippageTolerance", req.SlippagePct.String())

	var out struct {
		MinimumAmountOut jsonBig `json:"minimumAmountOut"`
		Transaction      struct {
			To       string  `json:"to"`
			Data     string  `json:"data"`
			Value    string  `json:"value"`
			GasLimit jsonBig `json:"gasLimit"`
		} `json:"transaction"`
	}
	if err := getJSON(ctx, a.client, NameUniswap, a.baseURL+"/swap", q, nil, &out); err != nil {
		return SwapTransaction{}, err
	}

	data, err := parseCallData(NameUniswap, out.Transaction.Data)
	if err != nil {
		return SwapTransaction{}, err
	}
	value, err := parseWeiValue(out.Transaction.Value)
	if err != nil {
		return SwapTransaction{}, fmt.Errorf("uniswap: %w", err)
	}

	gas := out.Transaction.GasLimit.Uint64()
	if gas == 0 {
		gas = defaultSwapGasLimit
	}

	return SwapTransaction{
		To:           common.HexToAddress(out.Transaction.To),
		Data:         data,
		Value:        value,
		Gas:          gas,
		MinAmountOut: out.MinimumAmountOut.Int(),
	}, nil
}
