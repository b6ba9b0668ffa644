package detection

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/evm"
	"evm-swap-bot/internal/idhash"
	"evm-swap-bot/internal/observability"
	"evm-swap-bot/internal/telemetry"
)

// eventBuffer absorbs short bursts without blocking the merge loop.
const eventBuffer = 64

// BalanceReader is the chain surface the wallet source polls.
type BalanceReader interface {
	GetTokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// MetadataReader enriches emitted assets with symbol and decimals.
// *tokencache.Cache satisfies this.
type MetadataReader interface {
	GetTokenMetadata(ctx context.Context, token common.Address) (domain.TokenMetadata, error)
}

// WalletSourceConfig wires a WalletSource.
type WalletSourceConfig struct {
	Client     BalanceReader
	Metadata   MetadataReader
	Subscriber LogSubscriber // nil disables the push channel
	Wallet     common.Address
	Watchlist  []common.Address
	Interval   time.Duration
	Dedup      *Dedup
	Recorder   telemetry.Recorder // nil discards telemetry
	Logger     zerolog.Logger
}

// WalletSource emits an AssetEvent whenever a token balance of the
// monitored wallet appears or changes. Push observes incoming Transfer
// logs; poll scans the watchlist plus every token seen so far.
type WalletSource struct {
	client     BalanceReader
	metadata   MetadataReader
	subscriber LogSubscriber
	wallet     common.Address
	watchlist  []common.Address
	interval   time.Duration
	dedup      *Dedup
	recorder   telemetry.Recorder
	log        zerolog.Logger

	// known maps token to the balance last dispatched downstream. It is
	// owned by the loop goroutine; no locking.
	known  map[common.Address]*big.Int
	health pushHealth
}

// NewWalletSource creates the source. The stream starts on Run.
func NewWalletSource(cfg WalletSourceConfig) (*WalletSource, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: wallet source needs a balance reader", domain.ErrInvalidConfig)
	}
	if cfg.Metadata == nil {
		return nil, fmt.Errorf("%w: wallet source needs a metadata reader", domain.ErrInvalidConfig)
	}
	if cfg.Dedup == nil {
		return nil, fmt.Errorf("%w: wallet source needs a dedup", domain.ErrInvalidConfig)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive", domain.ErrInvalidConfig)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = telemetry.Nop{}
	}
	log := cfg.Logger.With().
		Str("component", "detection").
		Str("wallet", cfg.Wallet.Hex()).
		Logger()

	return &WalletSource{
		client:     cfg.Client,
		metadata:   cfg.Metadata,
		subscriber: cfg.Subscriber,
		wallet:     cfg.Wallet,
		watchlist:  cfg.Watchlist,
		interval:   cfg.Interval,
		dedup:      cfg.Dedup,
		recorder:   recorder,
		log:        log,
		known:      make(map[common.Address]*big.Int),
		health:     pushHealth{recorder: recorder, log: log},
	}, nil
}

// Run starts the stream. The returned channel closes only when ctx is
// cancelled; the stream never restarts.
func (s *WalletSource) Run(ctx context.Context) <-chan domain.AssetEvent {
	out := make(chan domain.AssetEvent, eventBuffer)
	go s.loop(ctx, out)
	return out
}

func (s *WalletSource) loop(ctx context.Context, out chan<- domain.AssetEvent) {
	defer close(out)

	var logs <-chan evm.Log
	if s.subscriber != nil {
		logs = s.subscribe(ctx)
		s.health.init(ctx, logs != nil && s.subscriber.Connected())
	}

	// Scan immediately so startup balances do not wait a full interval.
	s.scan(ctx, out)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case lg, ok := <-logs:
			if !ok {
				logs = nil
				s.health.update(ctx, false)
				continue
			}
			s.handleTransferLog(ctx, lg, out)
		case <-ticker.C:
			if s.subscriber != nil {
				if logs == nil {
					logs = s.subscribe(ctx)
				}
				s.health.update(ctx, logs != nil && s.subscriber.Connected())
			}
			s.scan(ctx, out)
		}
	}
}

// subscribe requests Transfer logs crediting the wallet. A failure leaves
// the source polling; the next tick retries.
func (s *WalletSource) subscribe(ctx context.Context) <-chan evm.Log {
	filter := evm.LogsFilter{
		Topics: [][]common.Hash{
			{evm.TransferTopic},
			nil,
			{evm.AddressTopic(s.wallet)},
		},
	}
	logs, err := s.subscriber.SubscribeLogs(ctx, filter)
	if err != nil {
		s.log.Warn().Err(err).Msg("transfer subscription failed, polling continues")
		return nil
	}
	return logs
}

func (s *WalletSource) handleTransferLog(ctx context.Context, lg evm.Log, out chan<- domain.AssetEvent) {
	if lg.Removed || len(lg.Topics) != 3 || lg.Topics[0] != evm.TransferTopic {
		return
	}
	token := lg.Address
	balance, err := s.client.GetTokenBalance(ctx, token, s.wallet)
	if err != nil {
		s.log.Debug().Err(err).Str("token", token.Hex()).Msg("balance read failed")
		return
	}
	s.offer(ctx, out, token, balance, lg.TxHash, domain.SourcePush)
}

func (s *WalletSource) scan(ctx context.Context, out chan<- domain.AssetEvent) {
	for _, token := range s.scanSet() {
		if ctx.Err() != nil {
			return
		}
		balance, err := s.client.GetTokenBalance(ctx, token, s.wallet)
		if err != nil {
			s.log.Debug().Err(err).Str("token", token.Hex()).Msg("balance read failed")
			continue
		}
		s.offer(ctx, out, token, balance, common.Hash{}, domain.SourcePoll)
	}
}

// scanSet is the watchlist plus every token seen so far, deduplicated.
func (s *WalletSource) scanSet() []common.Address {
	seen := make(map[common.Address]struct{}, len(s.watchlist)+len(s.known))
	set := make([]common.Address, 0, len(s.watchlist)+len(s.known))
	for _, token := range s.watchlist {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		set = append(set, token)
	}
	for token := range s.known {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		set = append(set, token)
	}
	return set
}

// offer runs the shared emission path: balance-change gate, metadata
// enrichment, dedup admission, dispatch.
func (s *WalletSource) offer(ctx context.Context, out chan<- domain.AssetEvent, token common.Address, balance *big.Int, txHash common.Hash, source domain.EventSource) {
	last, tracked := s.known[token]

	if balance == nil || balance.Sign() <= 0 {
		if tracked && last.Sign() > 0 {
			s.known[token] = new(big.Int)
		}
		return
	}
	if tracked && last.Cmp(balance) == 0 {
		return
	}

	meta, err := s.metadata.GetTokenMetadata(ctx, token)
	if err != nil {
		// Held back, not dropped: the balance is still changed next tick.
		s.log.Warn().Err(err).Str("token", token.Hex()).Msg("metadata probe failed, holding event")
		return
	}

	hash := ""
	if txHash != (common.Hash{}) {
		hash = strings.ToLower(txHash.Hex())
	}
	id := idhash.ComputeAssetEventID(
		strings.ToLower(s.wallet.Hex()),
		strings.ToLower(token.Hex()),
		hash,
		balance.String(),
	)
	key := domain.OrderKey(s.wallet, token)
	if !s.dedup.Admit(id, key) {
		s.recorder.Record(ctx, domain.ExecutionEvent{
			Time:   time.Now(),
			Kind:   domain.EventSuppressed,
			Wallet: s.wallet,
			Token:  token,
			Detail: "duplicate observation",
		})
		return
	}

	event := domain.AssetEvent{
		ID:     id,
		Wallet: s.wallet,
		Asset: domain.WalletAsset{
			Token:    token,
			Symbol:   meta.Symbol,
			Balance:  new(big.Int).Set(balance),
			Decimals: meta.Decimals,
		},
		TxHash:     txHash,
		Source:     source,
		ObservedAt: time.Now(),
	}

	select {
	case out <- event:
	case <-ctx.Done():
		return
	}

	s.known[token] = new(big.Int).Set(balance)
	observability.RecordEventEmitted("asset", source.String())
	s.log.Info().
		Str("token", token.Hex()).
		Str("symbol", meta.Symbol).
		Str("balance", balance.String()).
		Str("source", source.String()).
		Msg("asset event emitted")
}
