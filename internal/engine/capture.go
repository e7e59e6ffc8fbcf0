// Package engine runs the duplex perturbation pipeline: the capture and
// playback callbacks and the session that owns their streams.
package engine

import (
	"sync/atomic"

	"github.com/audiolibrelab/antirec/internal/events"
	"github.com/audiolibrelab/antirec/internal/perturb"
	"github.com/audiolibrelab/antirec/internal/relay"
	"github.com/audiolibrelab/antirec/internal/sample"
)

// Sink receives samples for recording. Implementations must not block.
type Sink interface {
	Offer(x float32)
}

// Publisher receives one update per capture batch
type Publisher interface {
	HasSubscribers() bool
	Publish(u events.Update)
}

type discard struct{}

func (discard) Offer(float32) {}

// Capture turns raw input periods into perturbed samples on the relay
type Capture struct {
	codec sample.Codec
	seq   *perturb.Sequence
	relay relay.Relay
	track Sink
	pub   Publisher

	norm []float32
	out  []float32

	batches atomic.Uint64
	samples atomic.Uint64
}

// NewCapture wires a capture pipeline. track and pub may be nil.
func NewCapture(codec sample.Codec, seq *perturb.Sequence, r relay.Relay, track Sink, pub Publisher) *Capture {
	if track == nil {
		track = discard{}
	}
	return &Capture{codec: codec, seq: seq, relay: r, track: track, pub: pub}
}

// Process handles one capture period. It runs on the driver thread.
func (c *Capture) Process(buf []byte) {
	n := sample.Count(c.codec.Format(), len(buf))
	if n == 0 {
		return
	}
	c.grow(n)

	norm, out := c.norm[:n], c.out[:n]
	c.codec.Decode(norm, buf)

	for i, x := range norm {
		out[i] = x + c.seq.Offset()
		c.seq.Consume()
		c.track.Offer(x)
	}

	c.relay.Push(out)

	c.batches.Add(1)
	c.samples.Add(uint64(n))

	if c.pub != nil && c.pub.HasSubscribers() {
		// scratch buffers are reused by the next period
		both := make([]float32, 2*n)
		copy(both, norm)
		copy(both[n:], out)
		c.pub.Publish(events.Update{Ori: both[:n:n], New: both[n:]})
	}
}

// Batches returns how many periods were processed
func (c *Capture) Batches() uint64 {
	return c.batches.Load()
}

// Samples returns how many samples were processed
func (c *Capture) Samples() uint64 {
	return c.samples.Load()
}

func (c *Capture) grow(n int) {
	if cap(c.norm) < n {
		c.norm = make([]float32, n)
		c.out = make([]float32, n)
	}
}
