package aggregator

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"evm-swap-bot/internal/domain"
)

// DefaultZeroXURL is the 0x allowance-holder API endpoint.
const DefaultZeroXURL = "https://api.0x.org/swap/allowance-holder"

// ZeroX routes swaps through the 0x v2 API. Quote and swap share one
// endpoint; passing a taker upgrades the response to a firm transaction.
type ZeroX struct {
	baseURL  string
	apiKey   string
	chainID  uint64
	client   *http.Client
	quoteTTL time.Duration
}

// Compile-time interface check.
var _ Aggregator = (*ZeroX)(nil)

// NewZeroX creates a 0x client.
func NewZeroX(cfg Config) *ZeroX {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultZeroXURL
	}
	return &ZeroX{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		chainID:  cfg.ChainID,
		client:   cfg.httpClient(),
		quoteTTL: cfg.ttl(),
	}
}

// Name returns the canonical venue name.
func (a *ZeroX) Name() string { return NameZeroX }

func (a *ZeroX) headers() map[string]string {
	return map[string]string{
		"0x-api-key": a.apiKey,
		"0x-version": "v2",
	}
}

func (a *ZeroX) baseQuery(req QuoteRequest) url.Values {
	q := url.Values{}
	q.Set("chainId", strconv.FormatUint(a.chainID, 10))
	q.Set("sellToken", req.TokenIn.Hex())
	q.Set("buyToken", req.TokenOut.Hex())
	q.Set("sellAmount", req.AmountIn.String())
	q.Set("slippagePercentage", req.SlippagePct.String())
	return q
}

// zeroXResponse covers both the pricing and the firm-quote shape.
type zeroXResponse struct {
	BuyAmount       jsonBig `json:"buyAmount"`
	MinBuyAmount    jsonBig `json:"minBuyAmount"`
	AllowanceTarget string  `json:"allowanceTarget"`
	Route           struct {
		To    string  `json:"to"`
		Data  string  `json:"data"`
		Value string  `json:"value"`
		Gas   jsonBig `json:"gas"`
	} `json:"route"`
}

// GetQuote prices the swap.
func (a *ZeroX) GetQuote(ctx context.Context, req QuoteRequest) (domain.Quote, error) {
	var out zeroXResponse
	if err := getJSON(ctx, a.client, NameZeroX, a.baseURL+"/quote", a.baseQuery(req), a.headers(), &out); err != nil {
		return domain.Quote{}, err
	}

	gas := out.Route.Gas.Uint64()
	if gas == 0 {
		gas = defaultGasEstimate
	}

	return domain.Quote{
		Aggregator:   NameZeroX,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     new(big.Int).Set(req.AmountIn),
		ExpectedOut:  out.BuyAmount.Int(),
		EstimatedGas: gas,
		Expiry:       time.Now().Add(a.quoteTTL),
	}, nil
}

// BuildSwapTransaction fetches the firm quote with a taker address.
func (a *ZeroX) BuildSwapTransaction(ctx context.Context, req QuoteRequest) (SwapTransaction, error) {
	q := a.baseQuery(req)
	q.Set("taker", req.Wallet.Hex())

	var out zeroXResponse
	if err := getJSON(ctx, a.client, NameZeroX, a.baseURL+"/quote", q, a.headers(), &out); err != nil {
		return SwapTransaction{}, err
	}

	data, err := parseCallData(NameZeroX, out.Route.Data)
	if err != nil {
		return SwapTransaction{}, err
	}
	value, err := parseWeiValue(out.Route.Value)
	if err != nil {
		return SwapTransaction{}, fmt.Errorf("0x: %w", err)
	}

	gas := out.Route.Gas.Uint64()
	if gas == 0 {
		gas = defaultSwapGasLimit
	}

	return SwapTransaction{
		To:           common.HexToAddress(out.Route.To),
		Data:         data,
		Value:        value,
		Gas:          gas,
		MinAmountOut: out.MinBuyAmount.Int(),
		Spender:      common.HexToAddress(out.AllowanceTarget),
	}, nil
}
