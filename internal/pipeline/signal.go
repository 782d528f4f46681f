package pipeline

import (
	"context"
	"sync"
)

// Signal counts messages known to be queued but not yet claimed. It wakes
// idle workers; it does not bound how many of them run at once.
type Signal struct {
	mu    sync.Mutex
	count int
	wake  chan struct{}
}

func NewSignal() *Signal {
	return &Signal{wake: make(chan struct{})}
}

// Release increments the count and wakes every waiter.
func (s *Signal) Release() {
	s.mu.Lock()
	s.count++
	close(s.wake)
	s.wake = make(chan struct{})
	s.mu.Unlock()
}

// Acquire blocks until the count is positive and decrements it, or returns
// the context error.
func (s *Signal) Acquire(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.count > 0 {
			s.count--
			s.mu.Unlock()
			return nil
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// Count returns the current number of unclaimed releases.
func (s *Signal) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
