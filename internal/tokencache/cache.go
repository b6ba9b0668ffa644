package tokencache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"evm-swap-bot/internal/domain"
)

// Prober answers token metadata probes. *evm.HTTPClient satisfies this.
type Prober interface {
	GetTokenMetadata(ctx context.Context, token common.Address) (domain.TokenMetadata, error)
}

// Cache serves token metadata through an optional Redis layer so deferred
// events re-validated every tick do not re-probe the contract. With no
// Redis client configured every call falls through to the prober.
type Cache struct {
	prober  Prober
	rdb     *redis.Client
	chainID uint64
	ttl     time.Duration
	log     zerolog.Logger
}

// Compile-time interface check: a Cache is itself a Prober.
var _ Prober = (*Cache)(nil)

// New creates a metadata cache. rdb may be nil.
func New(prober Prober, rdb *redis.Client, chainID uint64, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		prober:  prober,
		rdb:     rdb,
		chainID: chainID,
		ttl:     ttl,
		log:     log.With().Str("component", "tokencache").Logger(),
	}
}

// cacheEntry is the Redis value. TotalSupply travels as a decimal string.
type cacheEntry struct {
	Symbol      string    `json:"symbol"`
	Decimals    uint8     `json:"decimals"`
	TotalSupply string    `json:"total_supply"`
	ProbeOK     bool      `json:"probe_ok"`
	CheckedAt   time.Time `json:"checked_at"`
}

func (c *Cache) key(token common.Address) string {
	return fmt.Sprintf("tokenmeta:%d:%s", c.chainID, strings.ToLower(token.Hex()))
}

// GetTokenMetadata returns cached metadata when present, probing and
// caching otherwise. Redis failures are logged and treated as misses.
func (c *Cache) GetTokenMetadata(ctx context.Context, token common.Address) (domain.TokenMetadata, error) {
	if c.rdb != nil {
		if meta, ok := c.lookup(ctx, token); ok {
			return meta, nil
		}
	}

	meta, err := c.prober.GetTokenMetadata(ctx, token)
	if err != nil {
		return meta, err
	}

	if c.rdb != nil {
		c.store(ctx, meta)
	}
	return meta, nil
}

func (c *Cache) lookup(ctx context.Context, token common.Address) (domain.TokenMetadata, bool) {
	raw, err := c.rdb.Get(ctx, c.key(token)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug().Err(err).Str("token", token.Hex()).Msg("cache read failed")
		}
		return domain.TokenMetadata{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.log.Debug().Err(err).Str("token", token.Hex()).Msg("cache entry corrupt")
		return domain.TokenMetadata{}, false
	}

	meta := domain.TokenMetadata{
		Token:     token,
		Symbol:    entry.Symbol,
		Decimals:  entry.Decimals,
		ProbeOK:   entry.ProbeOK,
		CheckedAt: entry.CheckedAt,
	}
	if entry.TotalSupply != "" {
		supply, ok := new(big.Int).SetString(entry.TotalSupply, 10)
		if !ok {
			return domain.TokenMetadata{}, false
		}
		meta.TotalSupply = supply
	}
	return meta, true
}

func (c *Cache) store(ctx context.Context, meta domain.TokenMetadata) {
	entry := cacheEntry{
		Symbol:    meta.Symbol,
		Decimals:  meta.Decimals,
		ProbeOK:   meta.ProbeOK,
		CheckedAt: meta.CheckedAt,
	}
	if meta.TotalSupply != nil {
		entry.TotalSupply = meta.TotalSupply.String()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(meta.Token), raw, c.ttl).Err(); err != nil {
		c.log.Debug().Err(err).Str("token", meta.Token.Hex()).Msg("cache write failed")
	}
}
