package relay

import (
	"fmt"
	"strings"
)

// Mode selects the ordering of a relay
type Mode string

const (
	ModeFIFO Mode = "fifo"
	ModeLIFO Mode = "lifo"
)

// Stats counts what happened to samples flowing through a relay
type Stats struct {
	Pushed    uint64 `json:"pushed"`
	Popped    uint64 `json:"popped"`
	Overflows uint64 `json:"overflows"`
	Underruns uint64 `json:"underruns"`
	Buffered  int    `json:"buffered"`
	Capacity  int    `json:"capacity"`
}

// Relay hands normalized samples from the capture callback to the playback
// callback. Each call takes the relay lock once for the whole batch.
type Relay interface {
	// Push appends a batch of samples
	Push(samples []float32)

	// Pop fills dst from the front of dst and returns the number of samples
	// taken. Slots dst[n:] are left untouched; every missing slot counts as
	// an underrun.
	Pop(dst []float32) int

	Len() int
	Stats() Stats
	Reset()
}

// ParseMode validates a relay mode name
func ParseMode(name string) (Mode, error) {
	switch Mode(strings.ToLower(name)) {
	case ModeFIFO, "":
		return ModeFIFO, nil
	case ModeLIFO:
		return ModeLIFO, nil
	}
	return "", fmt.Errorf("unknown relay mode: %q (valid: fifo, lifo)", name)
}

// Capacity converts a latency budget into a sample count
func Capacity(sampleRate, channels, ms int) int {
	n := sampleRate * channels * ms / 1000
	if n < channels {
		n = channels
	}
	return n
}

// New creates a relay of the given mode holding at most capacity samples.
// A LIFO relay with capacity <= 0 is unbounded.
func New(mode Mode, capacity int) (Relay, error) {
	switch mode {
	case ModeFIFO, "":
		if capacity <= 0 {
			return nil, fmt.Errorf("fifo relay needs a positive capacity, got %d", capacity)
		}
		return NewRing(capacity), nil
	case ModeLIFO:
		return NewStack(capacity), nil
	}
	return nil, fmt.Errorf("unknown relay mode: %q", mode)
}
