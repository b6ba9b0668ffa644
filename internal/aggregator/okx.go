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

// DefaultOKXURL is the OKX Web3 DEX API endpoint.
const DefaultOKXURL = "https://web3.okx.com/api/v6/dex"

// OKX routes swaps through the OKX DEX aggregator. Responses wrap the
// payload in a {code, msg, data[]} envelope; any code other than "0" is
// an error even on HTTP 200.
type OKX struct {
	baseURL  string
	apiKey   string
	chainID  uint64
	client   *http.Client
	quoteTTL time.Duration
}

// Compile-time interface check.
var _ Aggregator = (*OKX)(nil)

// NewOKX creates an OKX DEX client. The API key is sent as the project
// header.
func NewOKX(cfg Config) *OKX {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOKXURL
	}
	return &OKX{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		chainID:  cfg.ChainID,
		client:   cfg.httpClient(),
		quoteTTL: cfg.ttl(),
	}
}

// Name returns the canonical venue name.
func (a *OKX) Name() string { return NameOKX }

func (a *OKX) headers() map[string]string {
	h := map[string]string{}
	if a.apiKey != "" {
		h["OK-ACCESS-PROJECT"] = a.apiKey
	}
	return h
}

// okxEnvelope wraps every OKX response.
type okxEnvelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		OutAmount    jsonBig     `json:"outAmount"`
		MinOutAmount jsonBig     `json:"minOutAmount"`
		EstimatedGas jsonBig     `json:"estimatedGas"`
		PriceImpact  jsonDecimal `json:"priceImpact"`
		Tx           struct {
			To    string  `json:"to"`
			Data  string  `json:"data"`
			Value string  `json:"value"`
			Gas   jsonBig `json:"gas"`
		} `json:"tx"`
	} `json:"data"`
}

func (e *okxEnvelope) unwrap() error {
	if e.Code != "0" {
		msg := e.Msg
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("okx: api error %s: %s", e.Code, msg)
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("okx: empty data")
	}
	return nil
}

// GetQuote prices the swap via /aggregator/quote.
func (a *OKX) GetQuote(ctx context.Context, req QuoteRequest) (domain.Quote, error) {
	q := url.Values{}
	q.Set("chainIndex", strconv.FormatUint(a.chainID, 10))
	q.Set("fromTokenAddress", req.TokenIn.Hex())
	q.Set("toTokenAddress", req.TokenOut.Hex())
	q.Set("amount", req.AmountIn.String())
	q.Set("slippagePercent", req.SlippagePct.String())

	var out okxEnvelope
	if err := getJSON(ctx, a.client, NameOKX, a.baseURL+"/aggregator/quote", q, a.headers(), &out); err != nil {
		return domain.Quote{}, err
	}
	if err := out.unwrap(); err != nil {
		return domain.Quote{}, err
	}

	result := out.Data[0]
	gas := result.EstimatedGas.Uint64()
	if gas == 0 {
		gas = defaultGasEstimate
	}

	return domain.Quote{
		Aggregator:   NameOKX,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     new(big.Int).Set(req.AmountIn),
		ExpectedOut:  result.OutAmount.Int(),
		EstimatedGas: gas,
		PriceImpact:  result.PriceImpact.Decimal(),
		Expiry:       time.Now().Add(a.quoteTTL),
	}, nil
}

// BuildSwapTransaction fetches the routed transaction via /aggregator/swap.
func (a *OKX) BuildSwapTransaction(ctx context.Context, req QuoteRequest) (SwapTransaction, error) {
	q := url.Values{}
	q.Set("chainIndex", strconv.FormatUint(a.chainID, 10))
	q.Set("fromTokenAddress", req.TokenIn.Hex())
	q.Set("toTokenAddress", req.TokenOut.Hex())
	q.Set("amount", req.AmountIn.String())
	q.Set("userAddr", req.Wallet.Hex())
	q.Set("slippagePercent", req.SlippagePct.String())

	var out okxEnvelope
	if err := getJSON(ctx, a.client, NameOKX, a.baseURL+"/aggregator/swap", q, a.headers(), &out); err != nil {
		return SwapTransaction{}, err
	}
	if err := out.unwrap(); err != nil {
		return SwapTransaction{}, err
	}

	result := out.Data[0]
	data, err := parseCallData(NameOKX, result.Tx.Data)
	if err != nil {
		return SwapTransaction{}, err
	}
	value, err := parseWeiValue(result.Tx.Value)
	if err != nil {
		return SwapTransaction{}, fmt.Errorf("okx: %w", err)
	}

	gas := result.Tx.Gas.Uint64()
	if gas == 0 {
		gas = defaultSwapGasLimit
	}

	return SwapTransaction{
		To:           common.HexToAddress(result.Tx.To),
		Data:         data,
		Value:        value,
		Gas:          gas,
		MinAmountOut: result.MinOutAmount.Int(),
	}, nil
}
