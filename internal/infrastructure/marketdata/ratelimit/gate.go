package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time so tests can simulate waits and cooldowns.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Gate enforces a minimum spacing between calls to one provider and tracks
// a quota cooldown. Each adapter owns its own Gate.
//
// Acquire holds callMu for the whole wait, so concurrent callers are
// serialized through the gate instead of racing the last-call timestamp.
type Gate struct {
	minInterval time.Duration
	clock       Clock

	callMu sync.Mutex
	last   time.Time

	stateMu       sync.Mutex
	cooldownUntil time.Time
}

func NewGate(minInterval time.Duration) *Gate {
	return NewGateWithClock(minInterval, SystemClock)
}

func NewGateWithClock(minInterval time.Duration, clock Clock) *Gate {
	if clock == nil {
		clock = SystemClock
	}
	return &Gate{minInterval: minInterval, clock: clock}
}

// Acquire blocks until minInterval has passed since the previous call and
// records the new call time. The context is only checked before the wait
// starts; once waiting, Acquire runs to completion.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.callMu.Lock()
	defer g.callMu.Unlock()

	if !g.last.IsZero() {
		if wait := g.minInterval - g.clock.Now().Sub(g.last); wait > 0 {
			g.clock.Sleep(wait)
		}
	}
	g.last = g.clock.Now()
	return nil
}

// LastCall returns the time recorded by the latest Acquire.
func (g *Gate) LastCall() time.Time {
	g.callMu.Lock()
	defer g.callMu.Unlock()
	return g.last
}

// CooldownUntil marks the provider unavailable until t.
func (g *Gate) CooldownUntil(t time.Time) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	g.cooldownUntil = t
}

// IsAvailable is false while a cooldown is active. An expired cooldown is cleared.
func (g *Gate) IsAvailable() bool {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()

	if g.cooldownUntil.IsZero() {
		return true
	}
	if g.clock.Now().Before(g.cooldownUntil) {
		return false
	}
	g.cooldownUntil = time.Time{}
	return true
}

func (g *Gate) Now() time.Time {
	return g.clock.Now()
}

// Pause sleeps on the gate's clock without touching the call bookkeeping.
func (g *Gate) Pause(d time.Duration) {
	if d > 0 {
		g.clock.Sleep(d)
	}
}

// NextUTCMidnight returns the start of the UTC day after t.
func NextUTCMidnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
