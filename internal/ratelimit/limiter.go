// Package ratelimit spaces out requests to a single external provider.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// NominatimInterval is the minimum spacing between Nominatim requests. The
// public instance allows one request per second; the extra 100ms absorbs
// clock skew between us and their counter.
const NominatimInterval = 1100 * time.Millisecond

// Limiter enforces a minimum interval between successive acquisitions.
// One Limiter should guard one provider and be shared by every caller of it.
type Limiter struct {
	interval time.Duration
	clock    clockwork.Clock

	mu   sync.Mutex
	last time.Time // latest reserved slot, zero until the first acquisition
}

// New creates a Limiter. A nil clock uses the real clock.
func New(interval time.Duration, clock clockwork.Clock) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{interval: interval, clock: clock}
}

// Acquire blocks until at least the configured interval has passed since the
// previous acquisition. Concurrent callers are handed consecutive slots in
// the order they arrive. The first call after construction or Reset never
// waits. It returns how long it waited.
//
// If ctx ends during the wait, Acquire returns ctx.Err() straight away. When
// no later caller has queued behind it, its slot is given back.
func (l *Limiter) Acquire(ctx context.Context) (time.Duration, error) {
	l.mu.Lock()
	if err := ctx.Err(); err != nil {
		l.mu.Unlock()
		return 0, err
	}
	now := l.clock.Now()
	slot := now
	if !l.last.IsZero() {
		if next := l.last.Add(l.interval); next.After(now) {
			slot = next
		}
	}
	prev := l.last
	l.last = slot
	l.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return 0, nil
	}

	timer := l.clock.NewTimer(wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		l.mu.Lock()
		if l.last.Equal(slot) {
			l.last = prev
		}
		l.mu.Unlock()
		return 0, ctx.Err()
	case <-timer.Chan():
	}
	return wait, nil
}

// Reset forgets the last acquisition so the next Acquire returns immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = time.Time{}
}

// Interval returns the configured minimum spacing.
func (l *Limiter) Interval() time.Duration { return l.interval }
