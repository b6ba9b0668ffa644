// Package stub provides a configurable in-memory evm.Client for tests.
package stub

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/evm"
)

// ErrNotFound is returned when the stub holds no entry for a key.
var ErrNotFound = errors.New("not found")

// Client implements evm.Client backed by plain maps. Zero value is not
// usable; construct with NewClient. All exported maps may be populated
// before use; mutation during a test must go through the setters.
type Client struct {
	mu sync.Mutex

	ChainIDValue  *big.Int
	Balances      map[common.Address]*big.Int                 // native balances
	TokenBalances map[common.Address]map[common.Address]*big.Int // token -> holder -> balance
	Metadata      map[common.Address]domain.TokenMetadata
	Allowances    map[allowanceKey]*big.Int
	Reserves      map[common.Address]evm.PoolReserves
	Token0s       map[common.Address]common.Address
	Nonces        map[common.Address]uint64
	Receipts      map[common.Hash]*evm.TxReceipt

	gasPrice *big.Int
	sentTxs  [][]byte

	// SendErrs, when non-empty, fails successive SendRawTransaction calls
	// with the queued errors before succeeding.
	SendErrs []error

	// SendHash, when set, is returned for successful submissions.
	SendHash common.Hash
}

// Compile-time interface check.
var _ evm.Client = (*Client)(nil)

// NewClient creates an empty stub client with a 1 gwei gas price.
func NewClient() *Client {
	return &Client{
		ChainIDValue:  big.NewInt(1),
		Balances:      make(map[common.Address]*big.Int),
		TokenBalances: make(map[common.Address]map[common.Address]*big.Int),
		Metadata:      make(map[common.Address]domain.TokenMetadata),
		Allowances:    make(map[allowanceKey]*big.Int),
		Reserves:      make(map[common.Address]evm.PoolReserves),
		Token0s:       make(map[common.Address]common.Address),
		Nonces:        make(map[common.Address]uint64),
		Receipts:      make(map[common.Hash]*evm.TxReceipt),
		gasPrice:      big.NewInt(1_000_000_000),
		SendHash:      common.HexToHash("0x1"),
	}
}

// SetGasPrice sets the price returned by GetGasPrice.
func (c *Client) SetGasPrice(wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gasPrice = new(big.Int).Set(wei)
}

// SetTokenBalance sets one holder's balance for a token.
func (c *Client) SetTokenBalance(token, holder common.Address, balance *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	holders, ok := c.TokenBalances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		c.TokenBalances[token] = holders
	}
	holders[holder] = new(big.Int).Set(balance)
}

// allowanceKey identifies one (token, owner, spender) allowance slot.
type allowanceKey struct {
	token, owner, spender common.Address
}

// SetAllowance sets the allowance spender holds on owner's token balance.
func (c *Client) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
}

// SentTransactions returns a copy of every raw payload submitted so far.
func (c *Client) SentTransactions() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sentTxs))
	copy(out, c.sentTxs)
	return out
}

// ChainID returns the configured chain id.
func (c *Client) ChainID(_ context.Context) (*big.Int, error) {
	return c.ChainIDValue, nil
}

// GetBalance returns the stubbed native balance.
func (c *Client) GetBalance(_ context.Context, addr common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bal, ok := c.Balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

// GetTokenBalance returns the stubbed token balance.
func (c *Client) GetTokenBalance(_ context.Context, token, holder common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if holders, ok := c.TokenBalances[token]; ok {
		if bal, ok := holders[holder]; ok {
			return new(big.Int).Set(bal), nil
		}
	}
	return new(big.Int), nil
}

// GetAllowance returns the stubbed allowance, zero when unset.
func (c *Client) GetAllowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amt, ok := c.Allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(amt), nil
	}
	return new(big.Int), nil
}

// GetTokenMetadata returns the stubbed metadata, or a failed probe when
// the token is unknown.
func (c *Client) GetTokenMetadata(_ context.Context, token common.Address) (domain.TokenMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if meta, ok := c.Metadata[token]; ok {
		return meta, nil
	}
	return domain.TokenMetadata{Token: token}, nil
}

// GetPoolReserves returns the stubbed reserves.
func (c *Client) GetPoolReserves(_ context.Context, pool common.Address) (evm.PoolReserves, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res, ok := c.Reserves[pool]; ok {
		return res, nil
	}
	return evm.PoolReserves{}, ErrNotFound
}

// Token0 returns the stubbed pair ordering.
func (c *Client) Token0(_ context.Context, pool common.Address) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t0, ok := c.Token0s[pool]; ok {
		return t0, nil
	}
	return common.Address{}, ErrNotFound
}

// GetGasPrice returns the stubbed gas price.
func (c *Client) GetGasPrice(_ context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.gasPrice), nil
}

// PendingNonceAt returns the stubbed nonce.
func (c *Client) PendingNonceAt(_ context.Context, addr common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Nonces[addr], nil
}

// SendRawTransaction records the payload and pops queued errors first.
func (c *Client) SendRawTransaction(_ context.Context, rawTx []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.SendErrs) > 0 {
		err := c.SendErrs[0]
		c.SendErrs = c.SendErrs[1:]
		return common.Hash{}, err
	}
	payload := make([]byte, len(rawTx))
	copy(payload, rawTx)
	c.sentTxs = append(c.sentTxs, payload)
	return c.SendHash, nil
}

// GetTransactionReceipt returns the stubbed receipt, or nil while pending.
func (c *Client) GetTransactionReceipt(_ context.Context, txHash common.Hash) (*evm.TxReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Receipts[txHash], nil
}
