package build

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock only fires timers when told to.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock *manualClock
	at    time.Time
	f     func()
	done  bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.clock.removeLocked(t)
	return true
}

func (c *manualClock) removeLocked(target *manualTimer) {
	for i, t := range c.timers {
		if t == target {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// fireNext advances to the earliest pending timer and runs it on the calling
// goroutine. It reports false if nothing was pending.
func (c *manualClock) fireNext() bool {
	c.mu.Lock()
	if len(c.timers) == 0 {
		c.mu.Unlock()
		return false
	}
	next := c.timers[0]
	for _, t := range c.timers[1:] {
		if t.at.Before(next.at) {
			next = t
		}
	}
	c.removeLocked(next)
	next.done = true
	if next.at.After(c.now) {
		c.now = next.at
	}
	c.mu.Unlock()

	next.f()
	return true
}

func TestTimerSetStopAllPreventsCallbacks(t *testing.T) {
	clock := newManualClock()
	set := newTimerSet()

	fired := 0
	require.True(t, set.schedule(clock, time.Second, func() { fired++ }))
	require.True(t, set.schedule(clock, 2*time.Second, func() { fired++ }))
	assert.Equal(t, 2, set.pending())

	assert.Equal(t, 2, set.stopAll())
	assert.Equal(t, 0, set.pending())
	assert.False(t, clock.fireNext())
	assert.Equal(t, 0, fired)

	assert.False(t, set.schedule(clock, time.Second, func() { fired++ }))
	assert.Equal(t, 0, clock.pending())
}

func TestTimerSetForgetsFiredTimers(t *testing.T) {
	clock := newManualClock()
	set := newTimerSet()

	fired := 0
	set.schedule(clock, time.Millisecond, func() { fired++ })
	require.True(t, clock.fireNext())
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, set.pending())
}

func TestSleepHonoursContext(t *testing.T) {
	clock := newManualClock()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- sleep(ctx, clock, time.Hour) }()

	require.Eventually(t, func() bool { return clock.pending() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("sleep did not return after cancellation")
	}
	assert.Equal(t, 0, clock.pending())
}

func TestSleepZeroDelayReturnsImmediately(t *testing.T) {
	require.NoError(t, sleep(context.Background(), newManualClock(), 0))
}

func TestSystemClockAfterFunc(t *testing.T) {
	done := make(chan struct{})
	SystemClock().AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("system clock timer never fired")
	}
}
