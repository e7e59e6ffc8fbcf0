package perturb

import (
	"errors"
	"fmt"
	"math"
)

// ErrEmptySequence is returned when a sequence has no offsets to cycle through
var ErrEmptySequence = errors.New("perturbation sequence is empty")

// SamplesPerStep is how many interleaved samples share one offset. The
// cursor moves once per stereo frame; mono or multichannel input drifts out
// of phase with the frames.
const SamplesPerStep = 2

// Sequence cycles deterministically through additive offsets. It is owned
// by the capture pipeline and is not safe for concurrent use.
type Sequence struct {
	values []float32
	cursor int
	phase  int
}

// NewSequence copies values into a new sequence positioned at the first offset
func NewSequence(values []float32) (*Sequence, error) {
	if err := Validate(values); err != nil {
		return nil, err
	}
	v := make([]float32, len(values))
	copy(v, values)
	return &Sequence{values: v}, nil
}

// Validate checks that values can back a sequence
func Validate(values []float32) error {
	if len(values) == 0 {
		return ErrEmptySequence
	}
	for i, v := range values {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("perturbation value[%d] is not finite: %v", i, v)
		}
	}
	return nil
}

// Offset returns the offset at the cursor
func (s *Sequence) Offset() float32 {
	return s.values[s.cursor]
}

// Consume records one processed sample and advances the cursor on every
// SamplesPerStep-th call, wrapping at the end of the sequence.
func (s *Sequence) Consume() {
	s.phase++
	if s.phase == SamplesPerStep {
		s.phase = 0
		s.cursor = (s.cursor + 1) % len(s.values)
	}
}

// Cursor returns the index of the current offset
func (s *Sequence) Cursor() int {
	return s.cursor
}

// Len returns the number of offsets
func (s *Sequence) Len() int {
	return len(s.values)
}

// Values returns a copy of the offsets
func (s *Sequence) Values() []float32 {
	v := make([]float32, len(s.values))
	copy(v, s.values)
	return v
}
