// -----------------------------------------------------------------------
// Scheduler - timer indirection for the capture loops
// -----------------------------------------------------------------------

package capture

import (
	"context"
	"sync"
	"time"
)

// Scheduler abstracts the timers the capture session depends on, so the
// session and crawler logic can run against a controlled clock in tests.
type Scheduler interface {
	// Schedule arms a single-shot callback after d. While a callback is
	// pending, further calls are absorbed: the pending timer keeps its
	// original deadline and the new request is dropped.
	Schedule(d time.Duration, fn func())

	// Every runs fn on a fixed cadence until the returned stop function is
	// called.
	Every(d time.Duration, fn func()) (stop func())

	// Sleep blocks for d, returning early with ctx.Err() on cancellation.
	Sleep(ctx context.Context, d time.Duration) error
}

// NewScheduler returns the wall-clock Scheduler used in production.
func NewScheduler() Scheduler {
	return &clockScheduler{}
}

type clockScheduler struct {
	mu      sync.Mutex
	pending bool
}

func (s *clockScheduler) Schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = true
	s.mu.Unlock()

	time.AfterFunc(d, func() {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
		fn()
	})
}

func (s *clockScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-stop:
				ticker.Stop()
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() { close(stop) })
	}
}

func (s *clockScheduler) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
