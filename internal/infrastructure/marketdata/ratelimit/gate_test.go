package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 4, 15, 9, 30, 0, 0, time.UTC)

func TestGate_FirstCallProceedsImmediately(t *testing.T) {
	clock := NewFakeClock(start)
	g := NewGateWithClock(12*time.Second, clock)

	require.NoError(t, g.Acquire(context.Background()))

	assert.Empty(t, clock.Sleeps())
	assert.Equal(t, start, g.LastCall())
}

func TestGate_WaitsForRemainder(t *testing.T) {
	clock := NewFakeClock(start)
	g := NewGateWithClock(12*time.Second, clock)

	require.NoError(t, g.Acquire(context.Background()))
	clock.Advance(5 * time.Second)
	require.NoError(t, g.Acquire(context.Background()))

	assert.Equal(t, []time.Duration{7 * time.Second}, clock.Sleeps())
	assert.Equal(t, start.Add(12*time.Second), g.LastCall())

	clock.Advance(30 * time.Second)
	require.NoError(t, g.Acquire(context.Background()))
	assert.Len(t, clock.Sleeps(), 1, "no wait once the interval has elapsed")
}

func TestGate_CanceledBeforeWait(t *testing.T) {
	g := NewGateWithClock(time.Second, NewFakeClock(start))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, g.Acquire(ctx), context.Canceled)
	assert.True(t, g.LastCall().IsZero())
}

func TestGate_ConcurrentCallersAreSpaced(t *testing.T) {
	clock := NewFakeClock(start)
	g := NewGateWithClock(10*time.Second, clock)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Acquire(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(30*time.Second), g.LastCall())
	assert.Len(t, clock.Sleeps(), 3)
}

func TestGate_Cooldown(t *testing.T) {
	clock := NewFakeClock(start)
	g := NewGateWithClock(0, clock)

	assert.True(t, g.IsAvailable())

	g.CooldownUntil(NextUTCMidnight(clock.Now()))
	assert.False(t, g.IsAvailable())

	clock.Advance(14 * time.Hour)
	assert.False(t, g.IsAvailable())

	clock.Advance(31 * time.Minute)
	assert.True(t, g.IsAvailable())
	assert.True(t, g.IsAvailable())
}

func TestNextUTCMidnight(t *testing.T) {
	assert.Equal(t, time.Date(2024, 4, 16, 0, 0, 0, 0, time.UTC), NextUTCMidnight(start))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		NextUTCMidnight(time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)))
}
