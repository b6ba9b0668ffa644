// Package telemetry records the pipeline's structured execution events.
// The pipelines emit these as data; recorders decide where they land.
package telemetry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"evm-swap-bot/internal/domain"
)

// Recorder consumes structured pipeline events. Implementations are safe
// for concurrent use and must not block the pipeline.
type Recorder interface {
	Record(ctx context.Context, event domain.ExecutionEvent)
}

// Nop discards every event.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, domain.ExecutionEvent) {}

// LogRecorder writes events to the structured log.
type LogRecorder struct {
	log zerolog.Logger
}

// NewLogRecorder creates a Recorder backed by the given logger.
func NewLogRecorder(log zerolog.Logger) *LogRecorder {
	return &LogRecorder{log: log.With().Str("component", "telemetry").Logger()}
}

// Record implements Recorder.
func (r *LogRecorder) Record(_ context.Context, event domain.ExecutionEvent) {
	evt := r.log.Info()
	switch event.Kind {
	case domain.EventFailed, domain.EventTimeout, domain.EventDegraded:
		evt = r.log.Warn()
	case domain.EventSuppressed, domain.EventDeferred:
		evt = r.log.Debug()
	}

	evt = evt.Str("kind", event.Kind.String()).Time("at", event.Time)
	if event.Wallet != (common.Address{}) {
		evt = evt.Str("wallet", event.Wallet.Hex())
	}
	if event.Token != (common.Address{}) {
		evt = evt.Str("token", event.Token.Hex())
	}
	if event.Aggregator != "" {
		evt = evt.Str("aggregator", event.Aggregator)
	}
	if event.TxHash != (common.Hash{}) {
		evt = evt.Str("tx_hash", event.TxHash.Hex())
	}
	if event.AmountIn != "" {
		evt = evt.Str("amount_in", event.AmountIn)
	}
	if event.AmountOut != "" {
		evt = evt.Str("amount_out", event.AmountOut)
	}
	if event.Detail != "" {
		evt = evt.Str("detail", event.Detail)
	}
	evt.Msg("execution event")
}

// Multi fans every event out to each recorder in order.
type Multi struct {
	recorders []Recorder
}

// NewMulti combines recorders into one.
func NewMulti(recorders ...Recorder) *Multi {
	return &Multi{recorders: recorders}
}

// Record implements Recorder.
func (m *Multi) Record(ctx context.Context, event domain.ExecutionEvent) {
	for _, r := range m.recorders {
		r.Record(ctx, event)
	}
}
