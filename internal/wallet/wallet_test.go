package wallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Well-known development key, never funded on a real chain.
const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNew(t *testing.T) {
	w, err := New(devKey, big.NewInt(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if w.Address() != want {
		t.Errorf("expected address %s, got %s", want.Hex(), w.Address().Hex())
	}
	if w.ChainID().Cmp(big.NewInt(1)) != 0 {
		t.Errorf("expected chain id 1, got %s", w.ChainID())
	}
}

func TestNew_HexPrefix(t *testing.T) {
	plain, err := New(devKey, big.NewInt(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prefixed, err := New("0x"+devKey, big.NewInt(1))
	if err != nil {
		t.Fatalf("New with 0x prefix: %v", err)
	}
	if plain.Address() != prefixed.Address() {
		t.Error("0x prefix must not change the derived address")
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		chainID *big.Int
	}{
		{"empty key", "", big.NewInt(1)},
		{"bad hex", "zzzz", big.NewInt(1)},
		{"short key", "abcd", big.NewInt(1)},
		{"nil chain id", devKey, nil},
		{"zero chain id", devKey, big.NewInt(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.key, tt.chainID); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSignTx(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	chainID := big.NewInt(8453)
	w, err := New(hexKey, chainID)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	to := common.HexToAddress("0x1111111254EEB25477B68fb85Ed929f73A960582")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    7,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      250_000,
		GasPrice: big.NewInt(2_000_000_000),
		Data:     []byte{0x12, 0x34},
	})

	signed, err := w.SignTx(tx)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != w.Address() {
		t.Errorf("recovered sender %s, want %s", sender.Hex(), w.Address().Hex())
	}
}

func TestSignAndEncode(t *testing.T) {
	w, err := New(devKey, big.NewInt(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(1),
		Gas:      21_000,
		GasPrice: big.NewInt(1_000_000_000),
	})

	raw, err := w.SignAndEncode(tx)
	if err != nil {
		t.Fatalf("SignAndEncode: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected raw bytes")
	}

	var decoded types.Transaction
	if err := decoded.UnmarshalBinary(raw); err != nil {
		t.Fatalf("decode raw tx: %v", err)
	}
	if decoded.Nonce() != 0 || decoded.Gas() != 21_000 {
		t.Errorf("round-trip mismatch: nonce=%d gas=%d", decoded.Nonce(), decoded.Gas())
	}
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), &decoded)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != w.Address() {
		t.Errorf("recovered sender %s, want %s", sender.Hex(), w.Address().Hex())
	}
}
