package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type acquireResult struct {
	waited time.Duration
	err    error
	at     time.Time
}

func acquireAsync(ctx context.Context, l *Limiter, clock clockwork.Clock) <-chan acquireResult {
	done := make(chan acquireResult, 1)
	go func() {
		waited, err := l.Acquire(ctx)
		done <- acquireResult{waited: waited, err: err, at: clock.Now()}
	}()
	return done
}

func TestLimiter_FirstCallNeverWaits(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(NominatimInterval, clock)

	waited, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Zero(t, waited)
}

func TestLimiter_SecondCallWaitsFullInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(NominatimInterval, clock)
	start := clock.Now()

	_, err := l.Acquire(context.Background())
	require.NoError(t, err)

	done := acquireAsync(context.Background(), l, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(NominatimInterval - time.Millisecond)
	select {
	case <-done:
		t.Fatal("acquire returned before the interval elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Millisecond)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, NominatimInterval, res.waited)
	assert.GreaterOrEqual(t, res.at.Sub(start), NominatimInterval)
}

func TestLimiter_NoWaitAfterIntervalElapsed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(NominatimInterval, clock)

	_, err := l.Acquire(context.Background())
	require.NoError(t, err)

	clock.Advance(2 * time.Second)

	waited, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Zero(t, waited)
}

func TestLimiter_PartialElapsedWaitsRemainder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(NominatimInterval, clock)

	_, err := l.Acquire(context.Background())
	require.NoError(t, err)
	clock.Advance(400 * time.Millisecond)

	done := acquireAsync(context.Background(), l, clock)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(700 * time.Millisecond)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 700*time.Millisecond, res.waited)
}

func TestLimiter_ResetSkipsWait(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(NominatimInterval, clock)

	_, err := l.Acquire(context.Background())
	require.NoError(t, err)

	l.Reset()

	waited, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Zero(t, waited)
}

func TestLimiter_ContextCancelledDuringWait(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(NominatimInterval, clock)

	_, err := l.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := acquireAsync(ctx, l, clock)

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	cancel()

	res := <-done
	require.ErrorIs(t, res.err, context.Canceled)

	// The cancelled call did not count as an acquisition.
	clock.Advance(NominatimInterval)
	waited, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Zero(t, waited)
}

func TestLimiter_QueuedCallersGetConsecutiveSlots(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(NominatimInterval, clock)

	_, err := l.Acquire(context.Background())
	require.NoError(t, err)

	first := acquireAsync(context.Background(), l, clock)
	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	second := acquireAsync(context.Background(), l, clock)
	require.NoError(t, clock.BlockUntilContext(blockCtx, 2))

	clock.Advance(NominatimInterval)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, NominatimInterval, res.waited)

	clock.Advance(NominatimInterval)
	res = <-second
	require.NoError(t, res.err)
	assert.Equal(t, 2*NominatimInterval, res.waited)
}

func TestLimiter_QueuedCallerCancelReturnsPromptly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(NominatimInterval, clock)

	_, err := l.Acquire(context.Background())
	require.NoError(t, err)

	// One caller waits on the timer, a second queues behind it.
	waiting := acquireAsync(context.Background(), l, clock)
	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))

	ctx, cancel := context.WithCancel(context.Background())
	queued := acquireAsync(ctx, l, clock)
	require.NoError(t, clock.BlockUntilContext(blockCtx, 2))
	cancel()

	select {
	case res := <-queued:
		require.ErrorIs(t, res.err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller still blocked behind the waiting caller")
	}

	clock.Advance(NominatimInterval)
	res := <-waiting
	require.NoError(t, res.err)
	assert.Equal(t, NominatimInterval, res.waited)

	// The abandoned slot was given back: the next caller is spaced from
	// the last real acquisition, not from the cancelled one.
	next := acquireAsync(context.Background(), l, clock)
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	clock.Advance(NominatimInterval)
	res = <-next
	require.NoError(t, res.err)
	assert.Equal(t, NominatimInterval, res.waited)
}

func TestLimiter_AlreadyCancelledContext(t *testing.T) {
	l := New(NominatimInterval, clockwork.NewFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLimiter_IndependentInstances(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := New(NominatimInterval, clock)
	b := New(NominatimInterval, clock)

	_, err := a.Acquire(context.Background())
	require.NoError(t, err)

	waited, err := b.Acquire(context.Background())
	require.NoError(t, err)
	assert.Zero(t, waited, "limiters must not share state")
}

func TestLimiter_RealClockSpacing(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the wall clock")
	}
	l := New(50*time.Millisecond, nil)

	_, err := l.Acquire(context.Background())
	require.NoError(t, err)
	start := time.Now()
	_, err = l.Acquire(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, l.Interval())
}
