package detection

import (
	"sync"
	"time"

	"evm-swap-bot/internal/observability"
)

// InFlightChecker reports whether an order key is currently claimed by a
// running pipeline round. *execution.Registry satisfies this.
type InFlightChecker interface {
	InFlight(key string) bool
}

// Dedup is the two-layer duplicate suppressor shared by the detection
// sources. Layer one consults the in-flight registry so a key being
// executed is not dispatched again until the pipeline releases it; an
// observation suppressed this way leaves no trace, so the next one after
// release flows through. Layer two remembers observation IDs for the
// dedup window, catching the same observation arriving through both
// channels.
type Dedup struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	window    time.Duration
	inflight  InFlightChecker
	lastPrune time.Time
	now       func() time.Time
}

// NewDedup creates a suppressor with the given observation window.
// inflight may be nil when no registry participates.
func NewDedup(window time.Duration, inflight InFlightChecker) *Dedup {
	return &Dedup{
		seen:     make(map[string]time.Time),
		window:   window,
		inflight: inflight,
		now:      time.Now,
	}
}

// Admit reports whether the observation may be dispatched downstream,
// recording its ID on admission. Suppressions are counted on the dedup
// metric.
func (d *Dedup) Admit(id, key string) bool {
	if d.inflight != nil && d.inflight.InFlight(key) {
		observability.RecordDedupSuppressed()
		return false
	}

	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked(now)
	if at, ok := d.seen[id]; ok && now.Sub(at) < d.window {
		observability.RecordDedupSuppressed()
		return false
	}
	d.seen[id] = now
	return true
}

// pruneLocked drops IDs older than the window, at most once per window.
func (d *Dedup) pruneLocked(now time.Time) {
	if now.Sub(d.lastPrune) < d.window {
		return
	}
	d.lastPrune = now
	for id, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, id)
		}
	}
}
