package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"evm-swap-bot/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements Client using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new EVM JSON-RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error. Node-side execution errors
// (reverts, invalid transactions) arrive as this type and are never
// retried by the transport.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ChainID returns the chain id the endpoint serves.
func (c *HTTPClient) ChainID(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.call(ctx, "eth_chainId", nil, &result); err != nil {
		return nil, err
	}
	return result.ToInt(), nil
}

// GetBalance returns the native balance of an address in wei.
func (c *HTTPClient) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	params := []interface{}{addr.Hex(), "latest"}
	var result hexutil.Big
	if err := c.call(ctx, "eth_getBalance", params, &result); err != nil {
		return nil, err
	}
	return result.ToInt(), nil
}

// GetGasPrice returns the current gas price in wei.
func (c *HTTPClient) GetGasPrice(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.call(ctx, "eth_gasPrice", nil, &result); err != nil {
		return nil, err
	}
	return result.ToInt(), nil
}

// PendingNonceAt returns the next nonce including pending transactions.
func (c *HTTPClient) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	params := []interface{}{addr.Hex(), "pending"}
	var result hexutil.Uint64
	if err := c.call(ctx, "eth_getTransactionCount", params, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// callContract performs a read-only eth_call against a contract.
func (c *HTTPClient) callContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	params := []interface{}{
		map[string]string{
			"to":   to.Hex(),
			"data": hexutil.Encode(data),
		},
		"latest",
	}
	var result hexutil.Bytes
	if err := c.call(ctx, "eth_call", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTokenBalance returns the ERC-20 balance of holder in raw units.
func (c *HTTPClient) GetTokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	out, err := c.callContract(ctx, token, encodeCall(selBalanceOf, addressWord(holder)))
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	return decodeWordBig(out)
}

// GetAllowance returns the raw units spender may pull from owner's balance
// of the token.
func (c *HTTPClient) GetAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.callContract(ctx, token, encodeCall(selAllowance, addressWord(owner), addressWord(spender)))
	if err != nil {
		return nil, fmt.Errorf("allowance %s: %w", token.Hex(), err)
	}
	return decodeWordBig(out)
}

// GetTokenMetadata probes the token contract for the standard ERC-20 read
// interface. Probe calls answered with an execution error mark the token
// as failing the probe; transport failures propagate as errors.
func (c *HTTPClient) GetTokenMetadata(ctx context.Context, token common.Address) (domain.TokenMetadata, error) {
	meta := domain.TokenMetadata{Token: token, CheckedAt: time.Now().UTC()}

	decOut, err := c.callContract(ctx, token, encodeCall(selDecimals))
	if err != nil {
		if isExecutionError(err) {
			return meta, nil
		}
		return meta, fmt.Errorf("decimals %s: %w", token.Hex(), err)
	}
	dec, err := decodeWordBig(decOut)
	if err != nil {
		return meta, nil
	}

	supOut, err := c.callContract(ctx, token, encodeCall(selTotalSupply))
	if err != nil {
		if isExecutionError(err) {
			return meta, nil
		}
		return meta, fmt.Errorf("totalSupply %s: %w", token.Hex(), err)
	}
	sup, err := decodeWordBig(supOut)
	if err != nil {
		return meta, nil
	}

	// symbol() is best effort: plenty of legitimate tokens use bytes32 or
	// omit it entirely.
	if symOut, err := c.callContract(ctx, token, encodeCall(selSymbol)); err == nil {
		meta.Symbol = decodeStringWord(symOut)
	}

	if !dec.IsUint64() || dec.Uint64() > 255 {
		return meta, nil
	}
	meta.Decimals = uint8(dec.Uint64())
	meta.TotalSupply = sup
	meta.ProbeOK = true
	return meta, nil
}

// GetPoolReserves returns the raw reserves of a UniswapV2-style pair.
func (c *HTTPClient) GetPoolReserves(ctx context.Context, pool common.Address) (PoolReserves, error) {
	out, err := c.callContract(ctx, pool, encodeCall(selGetReserves))
	if err != nil {
		return PoolReserves{}, fmt.Errorf("getReserves %s: %w", pool.Hex(), err)
	}
	if len(out) < 96 {
		return PoolReserves{}, fmt.Errorf("getReserves %s: short return (%d bytes)", pool.Hex(), len(out))
	}
	return PoolReserves{
		Reserve0:           new(big.Int).SetBytes(out[0:32]),
		Reserve1:           new(big.Int).SetBytes(out[32:64]),
		BlockTimestampLast: uint32(new(big.Int).SetBytes(out[64:96]).Uint64()),
	}, nil
}

// Token0 returns the pair's token0 address.
func (c *HTTPClient) Token0(ctx context.Context, pool common.Address) (common.Address, error) {
	out, err := c.callContract(ctx, pool, encodeCall(selToken0))
	if err != nil {
		return common.Address{}, fmt.Errorf("token0 %s: %w", pool.Hex(), err)
	}
	if len(out) < 32 {
		return common.Address{}, fmt.Errorf("token0 %s: short return (%d bytes)", pool.Hex(), len(out))
	}
	return common.BytesToAddress(out[12:32]), nil
}

// SendRawTransaction submits a signed RLP-encoded transaction.
func (c *HTTPClient) SendRawTransaction(ctx context.Context, rawTx []byte) (common.Hash, error) {
	params := []interface{}{hexutil.Encode(rawTx)}
	var result common.Hash
	if err := c.call(ctx, "eth_sendRawTransaction", params, &result); err != nil {
		return common.Hash{}, err
	}
	return result, nil
}

// GetTransactionReceipt returns the receipt of a mined transaction.
// Returns nil if the transaction is not yet included.
func (c *HTTPClient) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*TxReceipt, error) {
	params := []interface{}{txHash.Hex()}

	var result *getReceiptResult
	if err := c.call(ctx, "eth_getTransactionReceipt", params, &result); err != nil {
		return nil, err
	}
	if result == nil {
		// Transaction not mined yet
		return nil, nil
	}

	receipt := &TxReceipt{
		TxHash:      txHash,
		Status:      uint64(result.Status),
		GasUsed:     uint64(result.GasUsed),
		BlockNumber: uint64(result.BlockNumber),
	}
	if result.EffectiveGasPrice != nil {
		receipt.EffectiveGasPrice = result.EffectiveGasPrice.ToInt()
	}
	for _, l := range result.Logs {
		receipt.Logs = append(receipt.Logs, Log{
			Address:     l.Address,
			Topics:      l.Topics,
			Data:        l.Data,
			BlockNumber: uint64(l.BlockNumber),
			TxHash:      l.TransactionHash,
			Removed:     l.Removed,
		})
	}
	return receipt, nil
}

// getReceiptResult is the raw RPC response for eth_getTransactionReceipt.
type getReceiptResult struct {
	Status            hexutil.Uint64 `json:"status"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
	BlockNumber       hexutil.Uint64 `json:"blockNumber"`
	Logs              []rpcLog       `json:"logs"`
}

// rpcLog is the raw RPC log entry shared by receipts and subscriptions.
type rpcLog struct {
	Address         common.Address `json:"address"`
	Topics          []common.Hash  `json:"topics"`
	Data            hexutil.Bytes  `json:"data"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	TransactionHash common.Hash    `json:"transactionHash"`
	Removed         bool           `json:"removed"`
}

// isExecutionError reports whether err is a node-side execution error
// (revert, missing method) rather than a transport failure.
func isExecutionError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}
