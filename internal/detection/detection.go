// Package detection produces deduplicated candidate events from two
// independently operating channels: an optional push subscription over
// WebSocket and a fixed-interval poll. A dropped push channel degrades the
// source to polling alone; it never stops the stream.
package detection

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"evm-swap-bot/internal/domain"
	"evm-swap-bot/internal/evm"
	"evm-swap-bot/internal/observability"
	"evm-swap-bot/internal/telemetry"
)

// LogSubscriber is the push surface. *evm.WSClient satisfies this.
type LogSubscriber interface {
	SubscribeLogs(ctx context.Context, filter evm.LogsFilter) (<-chan evm.Log, error)
	Connected() bool
}

// pushHealth tracks the push channel state and emits the degradation
// signal on transitions. It is owned by a single source goroutine.
type pushHealth struct {
	healthy  bool
	recorder telemetry.Recorder
	log      zerolog.Logger
}

// init sets the baseline and reports an initial failure as a degradation.
func (h *pushHealth) init(ctx context.Context, healthy bool) {
	h.healthy = true
	observability.SetPushConnected(true)
	if !healthy {
		h.update(ctx, false)
	}
}

// update emits degraded/recovered telemetry when the state flips.
func (h *pushHealth) update(ctx context.Context, healthy bool) {
	if healthy == h.healthy {
		return
	}
	h.healthy = healthy
	observability.SetPushConnected(healthy)

	kind := domain.EventRecovered
	detail := "push channel restored"
	if !healthy {
		kind = domain.EventDegraded
		detail = "push channel down, polling continues"
	}
	h.recorder.Record(ctx, domain.ExecutionEvent{
		Time:   time.Now(),
		Kind:   kind,
		Detail: detail,
	})
	if healthy {
		h.log.Info().Msg(detail)
		return
	}
	h.log.Warn().Msg(detail)
}
