package relay

import "sync"

// Ring is a bounded FIFO relay. When full, the oldest samples are dropped
// to make room so latency never exceeds the capacity.
type Ring struct {
	mu       sync.Mutex
	buffer   []float32
	readPos  int
	writePos int
	count    int
	stats    Stats
}

// NewRing creates a ring holding at most capacity samples
func NewRing(capacity int) *Ring {
	return &Ring{
		buffer: make([]float32, capacity),
	}
}

// Push appends samples, overwriting the oldest ones on overflow
func (r *Ring) Push(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.buffer)
	for _, s := range samples {
		if r.count == size {
			r.readPos = (r.readPos + 1) % size
			r.count--
			r.stats.Overflows++
		}
		r.buffer[r.writePos] = s
		r.writePos = (r.writePos + 1) % size
		r.count++
	}
	r.stats.Pushed += uint64(len(samples))
}

// Pop takes the oldest samples first
func (r *Ring) Pop(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.buffer)
	n := 0
	for n < len(dst) && r.count > 0 {
		dst[n] = r.buffer[r.readPos]
		r.readPos = (r.readPos + 1) % size
		r.count--
		n++
	}
	r.stats.Popped += uint64(n)
	r.stats.Underruns += uint64(len(dst) - n)
	return n
}

// Len returns the number of buffered samples
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Stats returns a snapshot of the counters
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.Buffered = r.count
	s.Capacity = len(r.buffer)
	return s
}

// Reset drops buffered samples and clears the counters
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.readPos, r.writePos, r.count = 0, 0, 0
	r.stats = Stats{}
}
