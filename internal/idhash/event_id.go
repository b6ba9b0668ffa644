package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeAssetEventID computes a deterministic asset-event ID using SHA256.
// Formula: SHA256(wallet|token|tx_hash|balance)
// Push events carry the crediting tx hash; poll events pass an empty hash,
// so an unchanged balance re-polled on the next tick collides on ID and is
// suppressed by the dedup window.
// Returns hex-encoded hash (64 characters).
func ComputeAssetEventID(wallet, token, txHash, balance string) string {
	data := fmt.Sprintf("%s|%s|%s|%s", wallet, token, txHash, balance)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputePoolEventID computes a deterministic pool-event ID using SHA256.
// Formula: SHA256(pool|token|token_reserve|paired_reserve|tick_bucket)
// The tick bucket is the observation time truncated to the monitoring
// interval, so push and poll observations of the same reserves within one
// tick collide on ID and the trigger machine counts them once.
// Returns hex-encoded hash (64 characters).
func ComputePoolEventID(pool, token, tokenReserve, pairedReserve string, tickBucket int64) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d", pool, token, tokenReserve, pairedReserve, tickBucket)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
