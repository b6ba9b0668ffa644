package evm

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSelectors(t *testing.T) {
	// Golden 4-byte selectors, cross-checked against the public ABI
	// registries.
	tests := []struct {
		name string
		sel  []byte
		want string
	}{
		{"balanceOf", selBalanceOf, "70a08231"},
		{"decimals", selDecimals, "313ce567"},
		{"symbol", selSymbol, "95d89b41"},
		{"totalSupply", selTotalSupply, "18160ddd"},
		{"getReserves", selGetReserves, "0902f1ac"},
		{"token0", selToken0, "0dfe1681"},
		{"allowance", selAllowance, "dd62ed3e"},
		{"approve", selApprove, "095ea7b3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hex.EncodeToString(tt.sel); got != tt.want {
				t.Errorf("selector = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTransferTopic(t *testing.T) {
	want := "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	if TransferTopic.Hex() != want {
		t.Errorf("TransferTopic = %s, want %s", TransferTopic.Hex(), want)
	}
}

func TestEncodeCall(t *testing.T) {
	addr := common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B")
	data := encodeCall(selBalanceOf, addressWord(addr))

	if len(data) != 4+32 {
		t.Fatalf("expected 36 bytes, got %d", len(data))
	}
	if hex.EncodeToString(data[:4]) != "70a08231" {
		t.Errorf("unexpected selector prefix %x", data[:4])
	}
	// The address occupies the low 20 bytes of the word.
	if common.BytesToAddress(data[4:36]) != addr {
		t.Errorf("argument word does not round-trip address")
	}
	for _, b := range data[4:16] {
		if b != 0 {
			t.Fatalf("expected zero padding, got %x", data[4:16])
		}
	}
}

func TestApproveCalldata(t *testing.T) {
	spender := common.HexToAddress("0x0000000000005E88410CcDFaDe4a5EfaE4b49D2A")
	data := ApproveCalldata(spender, big.NewInt(2_000_000))

	if len(data) != 4+32+32 {
		t.Fatalf("expected 68 bytes, got %d", len(data))
	}
	if hex.EncodeToString(data[:4]) != "095ea7b3" {
		t.Errorf("unexpected selector prefix %x", data[:4])
	}
	if common.BytesToAddress(data[4:36]) != spender {
		t.Errorf("spender word does not round-trip address")
	}
	if got := new(big.Int).SetBytes(data[36:68]); got.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Errorf("amount word = %s", got)
	}
}

func TestDecodeWordBig(t *testing.T) {
	word := make([]byte, 32)
	word[31] = 0x2a
	got, err := decodeWordBig(word)
	if err != nil {
		t.Fatalf("decodeWordBig: %v", err)
	}
	if got.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("expected 42, got %s", got)
	}

	if _, err := decodeWordBig([]byte{0x01}); err == nil {
		t.Error("expected error for short return data")
	}
}

func TestDecodeStringWord(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want string
	}{
		{
			name: "dynamic string",
			hex: "0000000000000000000000000000000000000000000000000000000000000020" +
				"0000000000000000000000000000000000000000000000000000000000000004" +
				"5745544800000000000000000000000000000000000000000000000000000000",
			want: "WETH",
		},
		{
			// MKR and other pre-standard tokens return bytes32.
			name: "bytes32 symbol",
			hex:  "4d4b520000000000000000000000000000000000000000000000000000000000",
			want: "MKR",
		},
		{
			name: "empty return",
			hex:  "",
			want: "",
		},
		{
			name: "offset past end",
			hex: "00000000000000000000000000000000000000000000000000000000000000ff" +
				"0000000000000000000000000000000000000000000000000000000000000004",
			want: "",
		},
		{
			name: "length past end",
			hex: "0000000000000000000000000000000000000000000000000000000000000020" +
				"00000000000000000000000000000000000000000000000000000000000000ff",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := hex.DecodeString(tt.hex)
			if err != nil {
				t.Fatalf("bad fixture: %v", err)
			}
			if got := decodeStringWord(raw); got != tt.want {
				t.Errorf("decodeStringWord = %q, want %q", got, tt.want)
			}
		})
	}
}

func transferLog(token, from, to common.Address, amount *big.Int) Log {
	return Log{
		Address: token,
		Topics: []common.Hash{
			TransferTopic,
			addressWord(from),
			addressWord(to),
		},
		Data: common.BigToHash(amount).Bytes(),
	}
}

func TestParseTransferAmount(t *testing.T) {
	token := common.HexToAddress("0xaaa0000000000000000000000000000000000001")
	other := common.HexToAddress("0xbbb0000000000000000000000000000000000002")
	router := common.HexToAddress("0xccc0000000000000000000000000000000000003")
	wallet := common.HexToAddress("0xddd0000000000000000000000000000000000004")

	logs := []Log{
		// Intermediate hop on another token.
		transferLog(other, router, wallet, big.NewInt(500)),
		// Router-internal hop on the right token, wrong recipient.
		transferLog(token, wallet, router, big.NewInt(100)),
		// Final payout.
		transferLog(token, router, wallet, big.NewInt(987)),
	}

	got := ParseTransferAmount(logs, token, wallet)
	if got == nil {
		t.Fatal("expected amount, got nil")
	}
	if got.Cmp(big.NewInt(987)) != 0 {
		t.Errorf("expected 987, got %s", got)
	}
}

func TestParseTransferAmount_LastWins(t *testing.T) {
	token := common.HexToAddress("0xaaa0000000000000000000000000000000000001")
	router := common.HexToAddress("0xccc0000000000000000000000000000000000003")
	wallet := common.HexToAddress("0xddd0000000000000000000000000000000000004")

	logs := []Log{
		transferLog(token, router, wallet, big.NewInt(1)),
		transferLog(token, router, wallet, big.NewInt(2)),
	}

	if got := ParseTransferAmount(logs, token, wallet); got.Cmp(big.NewInt(2)) != 0 {
		t.Errorf("expected the last transfer to win, got %s", got)
	}
}

func TestSyncTopic(t *testing.T) {
	// Canonical V2 pair Sync topic.
	want := "0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1"
	if got := SyncTopic.Hex(); got != want {
		t.Errorf("SyncTopic = %s, want %s", got, want)
	}
}

func TestAddressTopic(t *testing.T) {
	addr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	topic := AddressTopic(addr)

	want := "0x000000000000000000000000f39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	if got := topic.Hex(); got != want {
		t.Errorf("AddressTopic = %s, want %s", got, want)
	}
}

func TestParseSyncReserves(t *testing.T) {
	data := make([]byte, 64)
	copy(data[0:32], common.BigToHash(big.NewInt(123456789)).Bytes())
	copy(data[32:64], common.BigToHash(big.NewInt(987654321)).Bytes())

	r0, r1, err := ParseSyncReserves(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r0.Cmp(big.NewInt(123456789)) != 0 {
		t.Errorf("reserve0 = %s, want 123456789", r0)
	}
	if r1.Cmp(big.NewInt(987654321)) != 0 {
		t.Errorf("reserve1 = %s, want 987654321", r1)
	}

	if _, _, err := ParseSyncReserves(data[:40]); err == nil {
		t.Error("expected error for short data")
	}
}

func TestParseTransferAmount_NoMatch(t *testing.T) {
	token := common.HexToAddress("0xaaa0000000000000000000000000000000000001")
	wallet := common.HexToAddress("0xddd0000000000000000000000000000000000004")

	logs := []Log{
		// Removed by a reorg.
		func() Log {
			l := transferLog(token, wallet, wallet, big.NewInt(5))
			l.Removed = true
			return l
		}(),
		// Approval-shaped log with two topics only.
		{Address: token, Topics: []common.Hash{TransferTopic, addressWord(wallet)}},
	}

	if got := ParseTransferAmount(logs, token, wallet); got != nil {
		t.Errorf("expected nil, got %s", got)
	}
}
