package build

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts wall time and delayed execution so phase delays can be
// driven manually in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports false if the
	// callback already ran or was already stopped.
	Stop() bool
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// timerSet tracks every callback armed for one build attempt so they can be
// stopped together. Once closed it refuses new work.
type timerSet struct {
	mu     sync.Mutex
	timers map[uint64]Timer
	next   uint64
	closed bool
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[uint64]Timer)}
}

// schedule arms f after d. It reports false if the set was already closed.
func (s *timerSet) schedule(clock Clock, d time.Duration, f func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	id := s.next
	s.next++
	s.timers[id] = clock.AfterFunc(d, func() {
		if !s.forget(id) {
			return
		}
		f()
	})
	return true
}

// forget drops a fired timer. It reports false when the set was closed in the
// meantime, in which case the callback must not run.
func (s *timerSet) forget(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, id)
	return !s.closed
}

// stopAll stops every pending timer and closes the set.
func (s *timerSet) stopAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped := 0
	for id, timer := range s.timers {
		if timer.Stop() {
			stopped++
		}
		delete(s.timers, id)
	}
	s.closed = true
	return stopped
}

func (s *timerSet) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// sleep waits for d on clock or until ctx is done.
func sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	fired := make(chan struct{})
	timer := clock.AfterFunc(d, func() { close(fired) })
	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}
