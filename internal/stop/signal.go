// Package stop provides the broadcast primitive workers poll at every
// blocking or iteration boundary.
package stop

import "sync"

// Signal is a one-way latch: once triggered it stays triggered for the rest
// of the run. Trigger is safe to call from any goroutine, any number of times.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

func (s *Signal) Trigger() {
	s.once.Do(func() { close(s.ch) })
}

func (s *Signal) Triggered() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done exposes the latch as a channel for select loops.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}
