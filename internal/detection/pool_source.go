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

// ReserveReader is the chain surface the pool source polls.
type ReserveReader interface {
	GetPoolReserves(ctx context.Context, pool common.Address) (evm.PoolReserves, error)
	Token0(ctx context.Context, pool common.Address) (common.Address, error)
}

// PoolSourceConfig wires a PoolSource.
type PoolSourceConfig struct {
	Client     ReserveReader
	Subscriber LogSubscriber // nil disables the push channel
	Pool       common.Address
	Token      common.Address
	Paired     common.Address
	Interval   time.Duration
	Dedup      *Dedup
	Recorder   telemetry.Recorder // nil discards telemetry
	Logger     zerolog.Logger
}

// PoolSource emits a PoolEvent per monitoring tick for a single pair.
// Push observes Sync logs; poll reads getReserves. At most one event is
// emitted per tick so confirmation counting downstream stays tied to
// wall-clock ticks even when Sync logs arrive in bursts.
type PoolSource struct {
	client     ReserveReader
	subscriber LogSubscriber
	pool       common.Address
	token      common.Address
	paired     common.Address
	interval   time.Duration
	dedup      *Dedup
	recorder   telemetry.Recorder
	log        zerolog.Logger

	// Loop-goroutine state; no locking.
	tokenIs0   *bool // nil until token0 resolves, pair may not exist yet
	lastBucket int64
	health     pushHealth
}

// NewPoolSource creates the source. The stream starts on Run.
func NewPoolSource(cfg PoolSourceConfig) (*PoolSource, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: pool source needs a reserve reader", domain.ErrInvalidConfig)
	}
	if cfg.Dedup == nil {
		return nil, fmt.Errorf("%w: pool source needs a dedup", domain.ErrInvalidConfig)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: monitor interval must be positive", domain.ErrInvalidConfig)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = telemetry.Nop{}
	}
	log := cfg.Logger.With().
		Str("component", "detection").
		Str("pool", cfg.Pool.Hex()).
		Str("token", cfg.Token.Hex()).
		Logger()

	return &PoolSource{
		client:     cfg.Client,
		subscriber: cfg.Subscriber,
		pool:       cfg.Pool,
		token:      cfg.Token,
		paired:     cfg.Paired,
		interval:   cfg.Interval,
		dedup:      cfg.Dedup,
		recorder:   recorder,
		log:        log,
		health:     pushHealth{recorder: recorder, log: log},
	}, nil
}

// Run starts the stream. The returned channel closes only when ctx is
// cancelled; the stream never restarts.
func (s *PoolSource) Run(ctx context.Context) <-chan domain.PoolEvent {
	out := make(chan domain.PoolEvent, eventBuffer)
	go s.loop(ctx, out)
	return out
}

func (s *PoolSource) loop(ctx context.Context, out chan<- domain.PoolEvent) {
	defer close(out)

	var logs <-chan evm.Log
	if s.subscriber != nil {
		logs = s.subscribe(ctx)
		s.health.init(ctx, logs != nil && s.subscriber.Connected())
	}

	s.poll(ctx, out)

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
			s.handleSyncLog(ctx, lg, out)
		case <-ticker.C:
			if s.subscriber != nil {
				if logs == nil {
					logs = s.subscribe(ctx)
				}
				s.health.update(ctx, logs != nil && s.subscriber.Connected())
			}
			s.poll(ctx, out)
		}
	}
}

func (s *PoolSource) subscribe(ctx context.Context) <-chan evm.Log {
	filter := evm.LogsFilter{
		Addresses: []common.Address{s.pool},
		Topics:    [][]common.Hash{{evm.SyncTopic}},
	}
	logs, err := s.subscriber.SubscribeLogs(ctx, filter)
	if err != nil {
		s.log.Warn().Err(err).Msg("sync subscription failed, polling continues")
		return nil
	}
	return logs
}

// resolveOrder caches whether the monitored token is token0 of the pair.
// Before the pair exists on chain the call fails and is retried on the
// next observation.
func (s *PoolSource) resolveOrder(ctx context.Context) bool {
	if s.tokenIs0 != nil {
		return true
	}
	token0, err := s.client.Token0(ctx, s.pool)
	if err != nil {
		s.log.Debug().Err(err).Msg("token0 read failed, pair may not exist yet")
		return false
	}
	is0 := token0 == s.token
	s.tokenIs0 = &is0
	return true
}

func (s *PoolSource) poll(ctx context.Context, out chan<- domain.PoolEvent) {
	if !s.resolveOrder(ctx) {
		return
	}
	reserves, err := s.client.GetPoolReserves(ctx, s.pool)
	if err != nil {
		s.log.Debug().Err(err).Msg("reserve read failed")
		return
	}
	s.offer(ctx, out, reserves.Reserve0, reserves.Reserve1, domain.SourcePoll)
}

func (s *PoolSource) handleSyncLog(ctx context.Context, lg evm.Log, out chan<- domain.PoolEvent) {
	if lg.Removed || lg.Address != s.pool || len(lg.Topics) == 0 || lg.Topics[0] != evm.SyncTopic {
		return
	}
	if !s.resolveOrder(ctx) {
		return
	}
	reserve0, reserve1, err := evm.ParseSyncReserves(lg.Data)
	if err != nil {
		s.log.Debug().Err(err).Msg("malformed sync log")
		return
	}
	s.offer(ctx, out, reserve0, reserve1, domain.SourcePush)
}

func (s *PoolSource) offer(ctx context.Context, out chan<- domain.PoolEvent, reserve0, reserve1 *big.Int, source domain.EventSource) {
	now := time.Now()
	bucket := now.Truncate(s.interval).UnixNano()
	if bucket == s.lastBucket {
		return
	}

	tokenReserve, pairedReserve := reserve0, reserve1
	if !*s.tokenIs0 {
		tokenReserve, pairedReserve = reserve1, reserve0
	}

	id := idhash.ComputePoolEventID(
		strings.ToLower(s.pool.Hex()),
		strings.ToLower(s.token.Hex()),
		tokenReserve.String(),
		pairedReserve.String(),
		bucket,
	)
	if !s.dedup.Admit(id, domain.OrderKey(s.pool, s.token)) {
		return
	}

	event := domain.PoolEvent{
		ID: id,
		Snapshot: domain.PoolSnapshot{
			Pool:          s.pool,
			Token:         s.token,
			Paired:        s.paired,
			TokenReserve:  new(big.Int).Set(tokenReserve),
			PairedReserve: new(big.Int).Set(pairedReserve),
			ObservedAt:    now,
		},
		Source:     source,
		ObservedAt: now,
	}

	select {
	case out <- event:
	case <-ctx.Done():
		return
	}

	s.lastBucket = bucket
	observability.RecordEventEmitted("pool", source.String())
	s.log.Debug().
		Str("token_reserve", tokenReserve.String()).
		Str("paired_reserve", pairedReserve.String()).
		Str("source", source.String()).
		Msg("pool event emitted")
}
