package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DefaultDexScreenerURL is the public pairs API endpoint.
const DefaultDexScreenerURL = "https://api.dexscreener.com"

// DexScreener queries the DexScreener pairs API for token prices and
// pool depth. Among all listed pairs the one with the highest USD
// liquidity wins.
type DexScreener struct {
	baseURL       string
	client        *http.Client
	wrappedNative common.Address
}

// Compile-time interface check.
var _ Source = (*DexScreener)(nil)

// DexScreenerOption configures the client.
type DexScreenerOption func(*DexScreener)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) DexScreenerOption {
	return func(d *DexScreener) {
		d.baseURL = url
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) DexScreenerOption {
	return func(d *DexScreener) {
		d.client = client
	}
}

// NewDexScreener creates a DexScreener price source. The wrapped native
// token address anchors NativePriceUSD.
func NewDexScreener(wrappedNative common.Address, opts ...DexScreenerOption) *DexScreener {
	d := &DexScreener{
		baseURL:       DefaultDexScreenerURL,
		client:        &http.Client{Timeout: 10 * time.Second},
		wrappedNative: wrappedNative,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// pairsResponse mirrors /latest/dex/tokens/{address}. priceUsd arrives
// as a string, liquidity.usd as a number.
type pairsResponse struct {
	Pairs []struct {
		PairAddress string `json:"pairAddress"`
		DexID       string `json:"dexId"`
		PriceUSD    string `json:"priceUsd"`
		Liquidity   struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
	} `json:"pairs"`
}

// TokenMarket returns the highest-liquidity market for a token. The zero
// address and unlisted tokens come back as a zero Market.
func (d *DexScreener) TokenMarket(ctx context.Context, token common.Address) (Market, error) {
	if token == (common.Address{}) {
		return Market{}, nil
	}

	url := fmt.Sprintf("%s/latest/dex/tokens/%s", d.baseURL, token.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Market{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Market{}, fmt.Errorf("dexscreener request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Market{}, fmt.Errorf("dexscreener status %d", resp.StatusCode)
	}

	var parsed pairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Market{}, fmt.Errorf("decode dexscreener response: %w", err)
	}
	if len(parsed.Pairs) == 0 {
		return Market{}, nil
	}

	best := parsed.Pairs[0]
	for _, p := range parsed.Pairs[1:] {
		if p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}

	market := Market{
		LiquidityUSD: decimal.NewFromFloat(best.Liquidity.USD),
		PairAddress:  common.HexToAddress(best.PairAddress),
		DexID:        best.DexID,
	}
	if best.PriceUSD != "" {
		price, err := decimal.NewFromString(best.PriceUSD)
		if err != nil {
			return Market{}, fmt.Errorf("parse priceUsd %q: %w", best.PriceUSD, err)
		}
		market.PriceUSD = price
	}
	return market, nil
}

// NativePriceUSD returns the wrapped native token's market price.
func (d *DexScreener) NativePriceUSD(ctx context.Context) (decimal.Decimal, error) {
	market, err := d.TokenMarket(ctx, d.wrappedNative)
	if err != nil {
		return decimal.Zero, err
	}
	if !market.PriceUSD.IsPositive() {
		return decimal.Zero, fmt.Errorf("no market price for wrapped native %s", d.wrappedNative.Hex())
	}
	return market.PriceUSD, nil
}
