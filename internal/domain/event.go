package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventSource identifies which detection channel produced an event.
type EventSource string

const (
	SourcePush EventSource = "PUSH"
	SourcePoll EventSource = "POLL"
)

// String returns the string representation of EventSource.
func (s EventSource) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s EventSource) IsValid() bool {
	return s == SourcePush || s == SourcePoll
}

// AssetEvent says "asset X appeared or changed in the wallet". It carries
// the balance snapshot so downstream stages do not re-query chain state
// within the same tick. ID is the deterministic observation hash used for
// cross-channel deduplication.
type AssetEvent struct {
	ID         string         // idhash of the observation
	Wallet     common.Address // monitored wallet
	Asset      WalletAsset    // balance snapshot at observation time
	TxHash     common.Hash    // crediting transaction, zero for poll events
	Source     EventSource    // PUSH or POLL
	ObservedAt time.Time
}

// Key returns the per-asset dedup/in-flight key for the event.
func (e AssetEvent) Key() string {
	return OrderKey(e.Wallet, e.Asset.Token)
}

// PoolEvent says "liquidity state for token Y changed". One is emitted per
// monitoring tick that observes the pool.
type PoolEvent struct {
	ID         string       // idhash of the observation
	Snapshot   PoolSnapshot // reserves at observation time
	Source     EventSource  // PUSH or POLL
	ObservedAt time.Time
}

// Key returns the per-token dedup key for the event.
func (e PoolEvent) Key() string {
	return OrderKey(e.Snapshot.Pool, e.Snapshot.Token)
}
