package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		calls    int
		wantPass int
	}{
		{"burst allows initial requests", 1, 3, 3, 3},
		{"exceeding burst blocks", 1, 2, 5, 2},
		{"single token", 1, 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst)
			defer rl.Stop()

			passed := 0
			for range tt.calls {
				if rl.Allow("user-1") {
					passed++
				}
			}
			assert.Equal(t, tt.wantPass, passed)
		})
	}
}

func TestKeyedRateLimiter_IndependentKeys(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	require.True(t, rl.Allow("user-1"))
	assert.False(t, rl.Allow("user-1"), "user-1 should be exhausted")
	assert.True(t, rl.Allow("user-2"), "user-2 has its own bucket")
}

func TestKeyedRateLimiter_Reserve(t *testing.T) {
	rl := New(2, 1)
	defer rl.Stop()

	ok, wait := rl.Reserve("user-1")
	assert.True(t, ok)
	assert.Zero(t, wait)

	ok, wait = rl.Reserve("user-1")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, 500*time.Millisecond)
}

func TestKeyedRateLimiter_WaitContextCancelled(t *testing.T) {
	rl := New(0.1, 1)
	defer rl.Stop()

	rl.Allow("user-1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Error(t, rl.Wait(ctx, "user-1"))
}

func TestKeyedRateLimiter_EvictsIdleKeys(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("idle")
	now = now.Add(DefaultIdleTTL / 2)
	rl.Allow("active")
	assert.Equal(t, 2, rl.Len())

	now = now.Add(DefaultIdleTTL/2 + time.Second)
	rl.evictIdle()
	assert.Equal(t, 1, rl.Len())

	// An evicted key starts over with a full bucket.
	assert.True(t, rl.Allow("idle"))
}

func TestKeyedRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := New(1, 1)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
