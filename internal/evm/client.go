package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"evm-swap-bot/internal/domain"
)

// Client defines the chain RPC surface the pipeline consumes.
type Client interface {
	// ChainID returns the chain id the endpoint serves.
	ChainID(ctx context.Context) (*big.Int, error)

	// GetBalance returns the native balance of an address in wei.
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)

	// GetTokenBalance returns the ERC-20 balance of holder in raw units.
	GetTokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)

	// GetAllowance returns the raw units spender may pull from owner's
	// balance of the token.
	GetAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	// GetTokenMetadata probes the token contract for the standard ERC-20
	// read interface. A contract that reverts the probe calls comes back
	// with ProbeOK=false; transport failures return an error instead.
	GetTokenMetadata(ctx context.Context, token common.Address) (domain.TokenMetadata, error)

	// GetPoolReserves returns the raw reserves of a UniswapV2-style pair.
	GetPoolReserves(ctx context.Context, pool common.Address) (PoolReserves, error)

	// Token0 returns the pair's token0 address, used to order reserves.
	Token0(ctx context.Context, pool common.Address) (common.Address, error)

	// GetGasPrice returns the current gas price in wei.
	GetGasPrice(ctx context.Context) (*big.Int, error)

	// PendingNonceAt returns the next nonce for an address including
	// pending transactions.
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)

	// SendRawTransaction submits a signed RLP-encoded transaction.
	SendRawTransaction(ctx context.Context, rawTx []byte) (common.Hash, error)

	// GetTransactionReceipt returns the receipt of a mined transaction,
	// or nil when the transaction is not yet included.
	GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*TxReceipt, error)
}

// PoolReserves holds one getReserves() answer, in pair order.
type PoolReserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Log is one EVM event log entry.
type Log struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	Removed     bool
}

// TxReceipt is the confirmation outcome of a mined transaction.
type TxReceipt struct {
	TxHash            common.Hash
	Status            uint64 // 1 success, 0 reverted
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	BlockNumber       uint64
	Logs              []Log
}

// Reverted reports whether the transaction was included but failed.
func (r *TxReceipt) Reverted() bool {
	return r.Status == 0
}

// RealizedGasCost returns gasUsed * effectiveGasPrice in wei.
func (r *TxReceipt) RealizedGasCost() *big.Int {
	if r.EffectiveGasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}
