package engine

import (
	"sync/atomic"

	"github.com/audiolibrelab/antirec/internal/relay"
	"github.com/audiolibrelab/antirec/internal/sample"
)

// Playback fills output periods from the relay
type Playback struct {
	codec sample.Codec
	relay relay.Relay
	track Sink

	scratch []float32

	batches atomic.Uint64
	silent  atomic.Uint64
}

// NewPlayback wires a playback pipeline. track may be nil.
func NewPlayback(codec sample.Codec, r relay.Relay, track Sink) *Playback {
	if track == nil {
		track = discard{}
	}
	return &Playback{codec: codec, relay: r, track: track}
}

// Process fills one playback period. Slots the relay cannot supply hold the
// format's equilibrium value and are not recorded.
func (p *Playback) Process(buf []byte) {
	n := sample.Count(p.codec.Format(), len(buf))
	if cap(p.scratch) < n {
		p.scratch = make([]float32, n)
	}

	got := p.relay.Pop(p.scratch[:n])
	popped := p.scratch[:got]

	written := p.codec.Encode(buf, popped)
	for _, x := range popped {
		p.track.Offer(x)
	}
	p.codec.Silence(buf[written*p.codec.Format().Size():])

	p.batches.Add(1)
	p.silent.Add(uint64(n - got))
}

// Batches returns how many periods were filled
func (p *Playback) Batches() uint64 {
	return p.batches.Load()
}

// Silent returns how many slots were filled with equilibrium
func (p *Playback) Silent() uint64 {
	return p.silent.Load()
}
