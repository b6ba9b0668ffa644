package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/observability"
)

// EventSink persists batches of execution events. The ClickHouse event
// store satisfies this.
type EventSink interface {
	Insert(ctx context.Context, events []domain.ExecutionEvent) error
}

const (
	defaultFlushSize     = 64
	defaultFlushInterval = 5 * time.Second
	flushTimeout         = 10 * time.Second
)

// StoreRecorder buffers events and writes them to the sink in batches,
// flushing when the buffer fills, on a fixed interval, and on Close. Sink
// failures are logged and the batch is dropped; telemetry never takes the
// pipeline down.
type StoreRecorder struct {
	sink     EventSink
	size     int
	interval time.Duration
	log      zerolog.Logger

	mu  sync.Mutex
	buf []domain.ExecutionEvent

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// StoreOption configures a StoreRecorder.
type StoreOption func(*StoreRecorder)

// WithFlushSize sets the buffer size that forces a flush.
func WithFlushSize(n int) StoreOption {
	return func(r *StoreRecorder) {
		if n > 0 {
			r.size = n
		}
	}
}

// WithFlushInterval sets the periodic flush cadence.
func WithFlushInterval(d time.Duration) StoreOption {
	return func(r *StoreRecorder) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewStoreRecorder creates a buffering Recorder over the sink and starts
// its flush loop. Callers must Close it to drain the buffer.
func NewStoreRecorder(sink EventSink, log zerolog.Logger, opts ...StoreOption) *StoreRecorder {
	r := &StoreRecorder{
		sink:     sink,
		size:     defaultFlushSize,
		interval: defaultFlushInterval,
		log:      log.With().Str("component", "telemetry").Logger(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.buf = make([]domain.ExecutionEvent, 0, r.size)

	r.wg.Add(1)
	go r.flushLoop()
	return r
}

// Record implements Recorder.
func (r *StoreRecorder) Record(_ context.Context, event domain.ExecutionEvent) {
	r.mu.Lock()
	r.buf = append(r.buf, event)
	full := len(r.buf) >= r.size
	r.mu.Unlock()

	if full {
		r.flush()
	}
}

// Close stops the flush loop and drains the buffer.
func (r *StoreRecorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	r.flush()
	return nil
}

func (r *StoreRecorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *StoreRecorder) flush() {
	r.mu.Lock()
	if len(r.buf) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.buf
	r.buf = make([]domain.ExecutionEvent, 0, r.size)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := r.sink.Insert(ctx, batch); err != nil {
		observability.RecordDBError("events", "insert")
		r.log.Warn().Err(err).Int("events", len(batch)).Msg("telemetry batch dropped")
	}
}
