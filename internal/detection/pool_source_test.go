package detection

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/evm"
)

var (
	testPool   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	pairedWeth = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

type fakeReserves struct {
	mu     sync.Mutex
	r0     *big.Int
	r1     *big.Int
	rerr   error
	token0 common.Address
	t0err  error
}

func newFakeReserves(token0 common.Address, r0, r1 int64) *fakeReserves {
	return &fakeReserves{token0: token0, r0: big.NewInt(r0), r1: big.NewInt(r1)}
}

func (f *fakeReserves) setReserves(r0, r1 int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.r0, f.r1 = big.NewInt(r0), big.NewInt(r1)
}

func (f *fakeReserves) setReservesErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rerr = err
}

func (f *fakeReserves) setToken0Err(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t0err = err
}

func (f *fakeReserves) GetPoolReserves(_ context.Context, _ common.Address) (evm.PoolReserves, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rerr != nil {
		return evm.PoolReserves{}, f.rerr
	}
	return evm.PoolReserves{
		Reserve0: new(big.Int).Set(f.r0),
		Reserve1: new(big.Int).Set(f.r1),
	}, nil
}

func (f *fakeReserves) Token0(_ context.Context, _ common.Address) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.t0err != nil {
		return common.Address{}, f.t0err
	}
	return f.token0, nil
}

func syncLog(pool common.Address, reserve0, reserve1 int64) evm.Log {
	data := make([]byte, 0, 64)
	data = append(data, common.BigToHash(big.NewInt(reserve0)).Bytes()...)
	data = append(data, common.BigToHash(big.NewInt(reserve1)).Bytes()...)
	return evm.Log{
		Address: pool,
		Topics:  []common.Hash{evm.SyncTopic},
		Data:    data,
	}
}

func startPoolSource(t *testing.T, cfg PoolSourceConfig) (<-chan domain.PoolEvent, context.CancelFunc) {
	t.Helper()
	if cfg.Pool == (common.Address{}) {
		cfg.Pool = testPool
	}
	if cfg.Token == (common.Address{}) {
		cfg.Token = tokenA
	}
	if cfg.Paired == (common.Address{}) {
		cfg.Paired = pairedWeth
	}
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Millisecond
	}
	if cfg.Dedup == nil {
		cfg.Dedup = NewDedup(time.Minute, nil)
	}
	cfg.Logger = zerolog.Nop()
	src, err := NewPoolSource(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return src.Run(ctx), cancel
}

func waitPoolEvent(t *testing.T, ch <-chan domain.PoolEvent) domain.PoolEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pool event")
		return domain.PoolEvent{}
	}
}

func assertNoPoolEvent(t *testing.T, ch <-chan domain.PoolEvent, wait time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected pool event with token reserve %s", ev.Snapshot.TokenReserve)
		}
	case <-time.After(wait):
	}
}

func TestPoolSource_PollEmitsSnapshot(t *testing.T) {
	reserves := newFakeReserves(tokenA, 100, 200)

	out, _ := startPoolSource(t, PoolSourceConfig{Client: reserves})

	ev := waitPoolEvent(t, out)
	assert.Equal(t, domain.SourcePoll, ev.Source)
	assert.Equal(t, testPool, ev.Snapshot.Pool)
	assert.Equal(t, tokenA, ev.Snapshot.Token)
	assert.Equal(t, pairedWeth, ev.Snapshot.Paired)
	assert.Equal(t, "100", ev.Snapshot.TokenReserve.String())
	assert.Equal(t, "200", ev.Snapshot.PairedReserve.String())
	assert.NotEmpty(t, ev.ID)
}

func TestPoolSource_ReserveOrderFollowsToken0(t *testing.T) {
	// The paired asset is token0 here, so the reserves arrive swapped.
	reserves := newFakeReserves(pairedWeth, 777, 555)

	out, _ := startPoolSource(t, PoolSourceConfig{Client: reserves})

	ev := waitPoolEvent(t, out)
	assert.Equal(t, "555", ev.Snapshot.TokenReserve.String())
	assert.Equal(t, "777", ev.Snapshot.PairedReserve.String())
}

func TestPoolSource_EmitsEveryTick(t *testing.T) {
	reserves := newFakeReserves(tokenA, 100, 200)

	out, _ := startPoolSource(t, PoolSourceConfig{
		Client:   reserves,
		Interval: 30 * time.Millisecond,
	})

	first := waitPoolEvent(t, out)
	second := waitPoolEvent(t, out)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.ObservedAt.After(first.ObservedAt))
}

func TestPoolSource_SyncLogEmitsPush(t *testing.T) {
	reserves := newFakeReserves(tokenA, 0, 0)
	reserves.setReservesErr(errors.New("getReserves reverted"))
	sub := &fakeSubscriber{next: make(chan evm.Log, 1), connected: true}

	out, _ := startPoolSource(t, PoolSourceConfig{
		Client:     reserves,
		Subscriber: sub,
		Interval:   time.Hour,
	})

	sub.next <- syncLog(testPool, 123, 456)

	ev := waitPoolEvent(t, out)
	assert.Equal(t, domain.SourcePush, ev.Source)
	assert.Equal(t, "123", ev.Snapshot.TokenReserve.String())
	assert.Equal(t, "456", ev.Snapshot.PairedReserve.String())
}

func TestPoolSource_SyncBurstEmitsOncePerTick(t *testing.T) {
	reserves := newFakeReserves(tokenA, 100, 200)
	sub := &fakeSubscriber{next: make(chan evm.Log, 3), connected: true}

	out, _ := startPoolSource(t, PoolSourceConfig{
		Client:     reserves,
		Subscriber: sub,
		Interval:   time.Hour,
	})

	waitPoolEvent(t, out)

	sub.next <- syncLog(testPool, 101, 201)
	sub.next <- syncLog(testPool, 102, 202)
	sub.next <- syncLog(testPool, 103, 203)

	assertNoPoolEvent(t, out, 100*time.Millisecond)
}

func TestPoolSource_PairAbsentRetries(t *testing.T) {
	reserves := newFakeReserves(tokenA, 100, 200)
	reserves.setToken0Err(errors.New("execution reverted"))

	out, _ := startPoolSource(t, PoolSourceConfig{Client: reserves})

	assertNoPoolEvent(t, out, 60*time.Millisecond)

	reserves.setToken0Err(nil)
	ev := waitPoolEvent(t, out)
	assert.Equal(t, "100", ev.Snapshot.TokenReserve.String())
}

func TestPoolSource_MalformedSyncIgnored(t *testing.T) {
	reserves := newFakeReserves(tokenA, 0, 0)
	reserves.setReservesErr(errors.New("getReserves reverted"))
	sub := &fakeSubscriber{next: make(chan evm.Log, 3), connected: true}

	out, _ := startPoolSource(t, PoolSourceConfig{
		Client:     reserves,
		Subscriber: sub,
		Interval:   time.Hour,
	})

	short := syncLog(testPool, 1, 2)
	short.Data = short.Data[:17]
	sub.next <- short

	reorged := syncLog(testPool, 3, 4)
	reorged.Removed = true
	sub.next <- reorged

	assertNoPoolEvent(t, out, 60*time.Millisecond)

	sub.next <- syncLog(testPool, 123, 456)
	ev := waitPoolEvent(t, out)
	assert.Equal(t, "123", ev.Snapshot.TokenReserve.String())
}

func TestPoolSource_ClosedPushDegrades(t *testing.T) {
	reserves := newFakeReserves(tokenA, 100, 200)
	ch := make(chan evm.Log)
	sub := &fakeSubscriber{next: ch, connected: true}
	rec := &captureRecorder{}

	startPoolSource(t, PoolSourceConfig{
		Client:     reserves,
		Subscriber: sub,
		Recorder:   rec,
		Interval:   15 * time.Millisecond,
	})

	sub.swap(nil, false)
	close(ch)

	require.Eventually(t, func() bool {
		return rec.has(domain.EventDegraded)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPoolSource_CancelClosesStream(t *testing.T) {
	reserves := newFakeReserves(tokenA, 100, 200)

	out, cancel := startPoolSource(t, PoolSourceConfig{Client: reserves})
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close on cancel")
		}
	}
}

func TestNewPoolSource_Validation(t *testing.T) {
	reserves := newFakeReserves(tokenA, 100, 200)
	dedup := NewDedup(time.Minute, nil)

	cases := []struct {
		name string
		cfg  PoolSourceConfig
	}{
		{"missing client", PoolSourceConfig{Dedup: dedup, Interval: time.Second}},
		{"missing dedup", PoolSourceConfig{Client: reserves, Interval: time.Second}},
		{"zero interval", PoolSourceConfig{Client: reserves, Dedup: dedup}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPoolSource(tc.cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}
