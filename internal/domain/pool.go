package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PoolSnapshot captures the reserves of one liquidity pool at one
// monitoring tick. Snapshots live only in the bounded rolling window kept
// by the sniper tracker; they are never persisted.
type PoolSnapshot struct {
	Pool          common.Address // pair contract address
	Token         common.Address // monitored token
	Paired        common.Address // paired asset (typically wrapped native)
	TokenReserve  *big.Int       // raw token units held by the pool
	PairedReserve *big.Int       // raw paired-asset units held by the pool
	ObservedAt    time.Time      // tick timestamp
}

// HasLiquidity reports whether both reserves are positive.
func (s PoolSnapshot) HasLiquidity() bool {
	return s.TokenReserve != nil && s.TokenReserve.Sign() > 0 &&
		s.PairedReserve != nil && s.PairedReserve.Sign() > 0
}
