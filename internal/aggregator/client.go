package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// defaultGasEstimate stands in when a venue omits the gas field.
const defaultGasEstimate = 150_000

// defaultSwapGasLimit stands in when a venue omits the tx gas limit.
const defaultSwapGasLimit = 300_000

// APIError is a non-200 venue response.
type APIError struct {
	Venue  string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Venue, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Venue, e.Status, e.Body)
}

// getJSON performs a GET with query parameters and decodes the JSON body.
func getJSON(ctx context.Context, client *http.Client, venue, rawURL string, query url.Values, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", venue, err)
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request: %w", venue, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Venue: venue, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", venue, err)
	}
	return nil
}

// jsonBig decodes integer amounts that venues serve either as JSON
// strings or bare numbers.
type jsonBig big.Int

func (b *jsonBig) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid integer %q", s)
	}
	*b = jsonBig(*v)
	return nil
}

// Int returns the decoded value, zero when the field was absent.
func (b *jsonBig) Int() *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return (*big.Int)(b)
}

// Uint64 returns the decoded value clamped into uint64 range.
func (b *jsonBig) Uint64() uint64 {
	v := b.Int()
	if !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

// jsonDecimal decodes ratio fields served as strings or numbers.
type jsonDecimal decimal.Decimal

func (d *jsonDecimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = jsonDecimal(decimal.Zero)
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid decimal %q", s)
	}
	*d = jsonDecimal(v)
	return nil
}

func (d jsonDecimal) Decimal() decimal.Decimal {
	return decimal.Decimal(d)
}

// parseWeiValue accepts the tx value field in either 0x-hex or decimal
// form; venues disagree on the encoding.
func parseWeiValue(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return hexutil.DecodeBig(s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei value %q", s)
	}
	return v, nil
}

// parseCallData decodes the 0x-prefixed calldata of a swap transaction.
func parseCallData(venue, s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%s: swap response missing calldata", venue)
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid calldata: %w", venue, err)
	}
	return data, nil
}
