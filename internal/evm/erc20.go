package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// 4-byte selectors for the fixed read surface this system calls. The call
// set is small enough that full JSON ABIs would be dead weight.
var (
	selBalanceOf   = selector("balanceOf(address)")
	selDecimals    = selector("decimals()")
	selSymbol      = selector("symbol()")
	selTotalSupply = selector("totalSupply()")
	selGetReserves = selector("getReserves()")
	selToken0      = selector("token0()")
	selAllowance   = selector("allowance(address,address)")
	selApprove     = selector("approve(address,uint256)")
)

// ApproveCalldata encodes an ERC-20 approve(spender, amount) call.
func ApproveCalldata(spender common.Address, amount *big.Int) []byte {
	return encodeCall(selApprove, addressWord(spender), common.BigToHash(amount))
}

// TransferTopic is keccak256("Transfer(address,address,uint256)"), the
// topic0 of every ERC-20 transfer log.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// SyncTopic is keccak256("Sync(uint112,uint112)"), emitted by V2-style
// pair contracts whenever their reserves change.
var SyncTopic = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))

// AddressTopic left-pads an address into a 32-byte log topic for
// subscription filters.
func AddressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// ParseSyncReserves decodes the two reserve words of a pair Sync log.
func ParseSyncReserves(data []byte) (reserve0, reserve1 *big.Int, err error) {
	if len(data) < 64 {
		return nil, nil, fmt.Errorf("short Sync data (%d bytes)", len(data))
	}
	return new(big.Int).SetBytes(data[:32]), new(big.Int).SetBytes(data[32:64]), nil
}

// selector returns the first 4 bytes of keccak256(signature).
func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// encodeCall concatenates a selector with 32-byte argument words.
func encodeCall(sel []byte, args ...common.Hash) []byte {
	data := make([]byte, 0, len(sel)+len(args)*common.HashLength)
	data = append(data, sel...)
	for _, arg := range args {
		data = append(data, arg.Bytes()...)
	}
	return data
}

// addressWord left-pads an address into a 32-byte ABI word. The same
// padding serves as an address topic filter.
func addressWord(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// decodeWordBig decodes a single 32-byte return word as an unsigned
// integer.
func decodeWordBig(out []byte) (*big.Int, error) {
	if len(out) < 32 {
		return nil, fmt.Errorf("short ABI return (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// decodeStringWord decodes a string return value. Standard tokens return a
// dynamic ABI string; some older contracts return a fixed bytes32.
func decodeStringWord(out []byte) string {
	if len(out) == 32 {
		// bytes32 symbol, NUL padded
		return strings.TrimRight(string(out), "\x00")
	}
	if len(out) < 64 {
		return ""
	}
	offset := new(big.Int).SetBytes(out[:32])
	if !offset.IsInt64() || offset.Int64()+32 > int64(len(out)) {
		return ""
	}
	start := offset.Int64()
	length := new(big.Int).SetBytes(out[start : start+32])
	if !length.IsInt64() || start+32+length.Int64() > int64(len(out)) {
		return ""
	}
	return string(out[start+32 : start+32+length.Int64()])
}

// ParseTransferAmount scans receipt logs for ERC-20 Transfer events of the
// given token crediting the recipient and returns the last matching
// amount, or nil when none matched. Aggregator routers emit the final
// payout transfer last.
func ParseTransferAmount(logs []Log, token, recipient common.Address) *big.Int {
	var amount *big.Int
	for _, l := range logs {
		if l.Removed || l.Address != token || len(l.Topics) != 3 {
			continue
		}
		if l.Topics[0] != TransferTopic {
			continue
		}
		to := common.BytesToAddress(l.Topics[2].Bytes())
		if to != recipient {
			continue
		}
		if len(l.Data) < 32 {
			continue
		}
		amount = new(big.Int).SetBytes(l.Data[:32])
	}
	return amount
}
