package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet holds the signing key of the account the bot trades from and
// signs fully-built transactions for one chain. Transaction assembly
// lives with the executor; this type owns nothing but the key.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
	chainID *big.Int
}

// New parses a hex-encoded secp256k1 private key and binds it to a chain
// id for EIP-155 signing. A leading 0x is accepted.
func New(hexKey string, chainID *big.Int) (*Wallet, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("private key missing")
	}
	hexKey = strings.TrimPrefix(hexKey, "0x")

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id %v", chainID)
	}

	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
		chainID: new(big.Int).Set(chainID),
	}, nil
}

// Address returns the account address derived from the key.
func (w *Wallet) Address() common.Address {
	return w.address
}

// ChainID returns the chain id transactions are signed for.
func (w *Wallet) ChainID() *big.Int {
	return new(big.Int).Set(w.chainID)
}

// SignTx returns a signed copy of tx.
func (w *Wallet) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, w.signer, w.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// SignAndEncode signs tx and returns the raw bytes eth_sendRawTransaction
// expects.
func (w *Wallet) SignAndEncode(tx *types.Transaction) ([]byte, error) {
	signed, err := w.SignTx(tx)
	if err != nil {
		return nil, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return raw, nil
}
