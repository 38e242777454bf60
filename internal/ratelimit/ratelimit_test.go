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
		{name: "burst allows initial requests", rps: 1, burst: 3, calls: 3, wantPass: 3},
		{name: "exceeding burst blocks", rps: 1, burst: 2, calls: 5, wantPass: 2},
		{name: "zero rps disables limiting", rps: 0, burst: 1, calls: 20, wantPass: 20},
		{name: "burst below one is raised", rps: 1, burst: 0, calls: 2, wantPass: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst)
			defer rl.Stop()

			passed := 0
			for range tt.calls {
				if rl.Allow("tts") {
					passed++
				}
			}
			assert.Equal(t, tt.wantPass, passed)
		})
	}
}

func TestKeyedRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	assert.True(t, rl.Allow("ocr"))
	assert.False(t, rl.Allow("ocr"))
	assert.True(t, rl.Allow("tts"))
}

func TestKeyedRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := New(0.1, 1)
	defer rl.Stop()

	require.NoError(t, rl.Wait(context.Background(), "upload"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "upload"))
}

func TestKeyedRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("ocr")
	now = now.Add(5 * time.Minute)
	rl.Allow("tts")
	require.Equal(t, 2, rl.Len())

	now = now.Add(DefaultIdleTTL - time.Minute)
	rl.evict()

	assert.Equal(t, 1, rl.Len())
	// The evicted key starts over with a full bucket.
	assert.True(t, rl.Allow("ocr"))
}
