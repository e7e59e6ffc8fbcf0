package relay

import "sync"

// Stack is the last-in-first-out relay: playback always takes the most
// recently captured sample. Any buildup plays back reversed, so it is only
// offered for compatibility with recordings made that way.
//
// A positive limit bounds the stack by discarding the oldest samples.
type Stack struct {
	mu      sync.Mutex
	samples []float32
	limit   int
	stats   Stats
}

// NewStack creates a stack; limit <= 0 means unbounded
func NewStack(limit int) *Stack {
	return &Stack{limit: limit}
}

// Push appends samples to the top of the stack
func (s *Stack) Push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, samples...)
	s.stats.Pushed += uint64(len(samples))

	if s.limit > 0 && len(s.samples) > s.limit {
		excess := len(s.samples) - s.limit
		s.samples = append(s.samples[:0], s.samples[excess:]...)
		s.stats.Overflows += uint64(excess)
	}
}

// Pop takes samples from the top of the stack
func (s *Stack) Pop(dst []float32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for n < len(dst) && len(s.samples) > 0 {
		last := len(s.samples) - 1
		dst[n] = s.samples[last]
		s.samples = s.samples[:last]
		n++
	}
	s.stats.Popped += uint64(n)
	s.stats.Underruns += uint64(len(dst) - n)
	return n
}

// Len returns the number of buffered samples
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Stats returns a snapshot of the counters
func (s *Stack) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.Buffered = len(s.samples)
	st.Capacity = s.limit
	return st
}

// Reset drops buffered samples and clears the counters
func (s *Stack) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = s.samples[:0]
	s.stats = Stats{}
}
