package perturb

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Kind selects how offsets are produced
type Kind string

const (
	KindSequence Kind = "sequence"
	KindSine     Kind = "sine"
	KindNoise    Kind = "noise"
)

const (
	DefaultRate        = 48000
	DefaultNoiseLength = 4800

	// MinFrequency is the lowest sine frequency accepted, in Hz
	MinFrequency = 1.0
	// MaxLength caps the number of offsets a generator may produce
	MaxLength = 1 << 20
)

// Spec describes a perturbation before it is expanded into offsets
type Spec struct {
	Kind      Kind
	Values    []float64
	Frequency float64
	Amplitude float64
	Rate      int
	Length    int
	Seed      uint64
}

// Generate expands spec into the offsets a Sequence cycles through.
//
// A sine covers exactly one period at Rate frames per second; noise draws
// Length uniform offsets in [-Amplitude, Amplitude] from a seeded source so
// the same spec always yields the same offsets.
func Generate(spec Spec) ([]float32, error) {
	switch spec.Kind {
	case KindSequence, "":
		values := make([]float32, len(spec.Values))
		for i, v := range spec.Values {
			values[i] = float32(v)
		}
		if err := Validate(values); err != nil {
			return nil, err
		}
		return values, nil

	case KindSine:
		if spec.Frequency <= 0 {
			return nil, fmt.Errorf("sine frequency must be > 0, got %v", spec.Frequency)
		}
		if spec.Frequency < MinFrequency {
			return nil, fmt.Errorf("sine frequency must be >= %g Hz, got %v", MinFrequency, spec.Frequency)
		}
		rate := spec.Rate
		if rate <= 0 {
			rate = DefaultRate
		}
		p := math.Round(float64(rate) / spec.Frequency)
		if p > MaxLength {
			return nil, fmt.Errorf("sine period of %.0f samples exceeds %d", p, MaxLength)
		}
		period := max(int(p), 1)
		values := make([]float32, period)
		w := 2 * math.Pi * spec.Frequency / float64(rate)
		for i := range values {
			values[i] = float32(spec.Amplitude * math.Sin(w*float64(i)))
		}
		return values, nil

	case KindNoise:
		n := spec.Length
		if n <= 0 {
			n = DefaultNoiseLength
		}
		if n > MaxLength {
			return nil, fmt.Errorf("noise length %d exceeds %d", n, MaxLength)
		}
		rng := rand.New(rand.NewPCG(spec.Seed, spec.Seed^0x9e3779b97f4a7c15))
		values := make([]float32, n)
		for i := range values {
			values[i] = float32(spec.Amplitude * (2*rng.Float64() - 1))
		}
		return values, nil
	}

	return nil, fmt.Errorf("unknown perturbation kind: %q", spec.Kind)
}
