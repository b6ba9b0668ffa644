package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenMetadata is the result of the on-chain contract capability probe.
// A token whose contract does not answer the standard ERC-20 read calls
// fails the probe and is treated as a scam/honeypot signal.
type TokenMetadata struct {
	Token       common.Address // token contract address
	Symbol      string         // from symbol(), empty if the call reverted
	Decimals    uint8          // from decimals()
	TotalSupply *big.Int       // from totalSupply()
	ProbeOK     bool           // contract answered all probe calls sanely
	CheckedAt   time.Time      // when the probe ran
}
