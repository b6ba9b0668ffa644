package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// WalletAsset is an immutable balance snapshot of one ERC-20 token held by
// the monitored wallet, taken during a single detection cycle. A newer
// cycle supersedes it; it is never updated in place.
type WalletAsset struct {
	Token    common.Address // token contract address
	Symbol   string         // token symbol, empty if metadata probe skipped
	Balance  *big.Int       // raw token units
	Decimals uint8          // token decimals
}

// HasBalance reports whether the snapshot holds a positive balance.
func (a WalletAsset) HasBalance() bool {
	return a.Balance != nil && a.Balance.Sign() > 0
}
