package detection

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInFlight struct {
	keys map[string]bool
}

func (f *fakeInFlight) InFlight(key string) bool { return f.keys[key] }

func TestDedup_SuppressesRepeatWithinWindow(t *testing.T) {
	d := NewDedup(time.Minute, nil)

	require.True(t, d.Admit("ev-1", "wallet/token"))
	assert.False(t, d.Admit("ev-1", "wallet/token"))
	assert.True(t, d.Admit("ev-2", "wallet/token"))
}

func TestDedup_ReadmitsAfterWindow(t *testing.T) {
	now := time.Now()
	d := NewDedup(time.Minute, nil)
	d.now = func() time.Time { return now }

	require.True(t, d.Admit("ev-1", "k"))
	require.False(t, d.Admit("ev-1", "k"))

	now = now.Add(61 * time.Second)
	assert.True(t, d.Admit("ev-1", "k"))
}

func TestDedup_SuppressesInFlightKeys(t *testing.T) {
	checker := &fakeInFlight{keys: map[string]bool{"wallet/token": true}}
	d := NewDedup(time.Minute, checker)

	assert.False(t, d.Admit("ev-1", "wallet/token"))
	assert.True(t, d.Admit("ev-2", "wallet/other"))
}

func TestDedup_InFlightSuppressionLeavesNoTrace(t *testing.T) {
	checker := &fakeInFlight{keys: map[string]bool{"k": true}}
	d := NewDedup(time.Minute, checker)

	require.False(t, d.Admit("ev-1", "k"))
	checker.keys["k"] = false

	// The ID was never recorded, so the observation flows through once
	// the pipeline releases the key.
	assert.True(t, d.Admit("ev-1", "k"))
	assert.False(t, d.Admit("ev-1", "k"))
}

func TestDedup_NilCheckerSkipsInFlightLayer(t *testing.T) {
	d := NewDedup(time.Minute, nil)
	assert.True(t, d.Admit("ev-1", "k"))
}

func TestDedup_PrunesExpiredIDs(t *testing.T) {
	now := time.Now()
	d := NewDedup(time.Minute, nil)
	d.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		require.True(t, d.Admit(fmt.Sprintf("ev-%d", i), "k"))
	}
	require.Len(t, d.seen, 100)

	now = now.Add(2 * time.Minute)
	d.Admit("fresh", "k")
	assert.Len(t, d.seen, 1)
}
