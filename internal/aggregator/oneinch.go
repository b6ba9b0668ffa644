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

// DefaultOneInchURL is the 1inch aggregation API endpoint.
const DefaultOneInchURL = "https://api.1inch.dev/v5.2"

// OneInch routes swaps through the 1inch aggregation protocol. Requires
// an API key (Bearer auth); without one every call errors out and the
// broker skips the venue.
type OneInch struct {
	baseURL  string
	apiKey   string
	chainID  uint64
	client   *http.Client
	quoteTTL time.Duration
}

// Compile-time interface check.
var _ Aggregator = (*OneInch)(nil)

// NewOneInch creates a 1inch client.
func NewOneInch(cfg Config) *OneInch {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOneInchURL
	}
	return &OneInch{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		chainID:  cfg.ChainID,
		client:   cfg.httpClient(),
		quoteTTL: cfg.ttl(),
	}
}

// Name returns the canonical venue name.
func (a *OneInch) Name() string { return NameOneInch }

func (a *OneInch) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.apiKey}
}

// GetQuote prices the swap via /quote.
func (a *OneInch) GetQuote(ctx context.Context, req QuoteRequest) (domain.Quote, error) {
	if a.apiKey == "" {
		return domain.Quote{}, fmt.Errorf("1inch: api key not configured")
	}

	q := url.Values{}
	q.Set("tokenIn", req.TokenIn.Hex())
	q.Set("tokenOut", req.TokenOut.Hex())
	q.Set("amount", req.AmountIn.String())

	var out struct {
		ToAmount     jsonBig `json:"toAmount"`
		EstimatedGas jsonBig `json:"estimatedGas"`
	}
	endpoint := fmt.Sprintf("%s/%d/quote", a.baseURL, a.chainID)
	if err := getJSON(ctx, a.client, NameOneInch, endpoint, q, a.headers(), &out); err != nil {
		return domain.Quote{}, err
	}

	gas := out.EstimatedGas.Uint64()
	if gas == 0 {
		gas = defaultGasEstimate
	}

	return domain.Quote{
		Aggregator:   NameOneInch,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     new(big.Int).Set(req.AmountIn),
		ExpectedOut:  out.ToAmount.Int(),
		EstimatedGas: gas,
		Expiry:       time.Now().Add(a.quoteTTL),
	}, nil
}

// BuildSwapTransaction fetches the routed transaction via /swap.
func (a *OneInch) BuildSwapTransaction(ctx context.Context, req QuoteRequest) (SwapTransaction, error) {
	if a.apiKey == "" {
		return SwapTransaction{}, fmt.Errorf("1inch: api key not configured")
	}

	q := url.Values{}
	q.Set("tokenIn", req.TokenIn.Hex())
	q.Set("tokenOut", req.TokenOut.Hex())
	q.Set("amount", req.AmountIn.String())
	q.Set("from", req.Wallet.Hex())
	q.Set("slippage", req.SlippagePct.String())

	var out struct {
		ToAmount jsonBig `json:"toAmount"`
		Tx       struct {
			To    string  `json:"to"`
			Data  string  `json:"data"`
			Value string  `json:"value"`
			Gas   jsonBig `json:"gas"`
		} `json:"tx"`
	}
	endpoint := fmt.Sprintf("%s/%d/swap", a.baseURL, a.chainID)
	if err := getJSON(ctx, a.client, NameOneInch, endpoint, q, a.headers(), &out); err != nil {
		return SwapTransaction{}, err
	}

	data, err := parseCallData(NameOneInch, out.Tx.Data)
	if err != nil {
		return SwapTransaction{}, err
	}
	value, err := parseWeiValue(out.Tx.Value)
	if err != nil {
		return SwapTransaction{}, fmt.Errorf("1inch: %w", err)
	}

	gas := out.Tx.Gas.Uint64()
	if gas == 0 {
		gas = defaultSwapGasLimit
	}

	return SwapTransaction{
		To:           common.HexToAddress(out.Tx.To),
		Data:         data,
		Value:        value,
		Gas:          gas,
		MinAmountOut: out.ToAmount.Int(),
	}, nil
}
