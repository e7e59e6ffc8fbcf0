package perturb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSequence_Empty(t *testing.T) {
	_, err := NewSequence(nil)
	require.ErrorIs(t, err, ErrEmptySequence)
}

func TestNewSequence_RejectsNonFinite(t *testing.T) {
	_, err := NewSequence([]float32{0.1, float32(math.Inf(1))})
	require.Error(t, err)

	_, err = NewSequence([]float32{float32(math.NaN())})
	require.Error(t, err)
}

func TestNewSequence_CopiesValues(t *testing.T) {
	in := []float32{0.1, 0.2}
	seq, err := NewSequence(in)
	require.NoError(t, err)

	in[0] = 9
	assert.Equal(t, float32(0.1), seq.Offset())
}

func TestSequence_AdvancesOncePerPair(t *testing.T) {
	seq, err := NewSequence([]float32{0.1, -0.1, 0.3})
	require.NoError(t, err)

	assert.Equal(t, 0, seq.Cursor())
	seq.Consume()
	assert.Equal(t, 0, seq.Cursor())
	seq.Consume()
	assert.Equal(t, 1, seq.Cursor())
	seq.Consume()
	seq.Consume()
	assert.Equal(t, 2, seq.Cursor())
	seq.Consume()
	seq.Consume()
	assert.Equal(t, 0, seq.Cursor(), "cursor wraps modulo length")
}

func TestSequence_CyclicInvariant(t *testing.T) {
	for _, n := range []int{1, 2, 5, 7} {
		values := make([]float32, n)
		for i := range values {
			values[i] = float32(i) / 10
		}
		seq, err := NewSequence(values)
		require.NoError(t, err)

		for k := 1; k <= 3; k++ {
			for i := 0; i < 2*n; i++ {
				seq.Consume()
			}
			assert.Equal(t, 0, seq.Cursor(), "n=%d k=%d", n, k)
		}
	}
}

func TestGenerate_Sequence(t *testing.T) {
	values, err := Generate(Spec{Kind: KindSequence, Values: []float64{0.1, -0.1}})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, -0.1}, values)

	_, err = Generate(Spec{Kind: KindSequence})
	assert.ErrorIs(t, err, ErrEmptySequence)
}

func TestGenerate_SineCoversOnePeriod(t *testing.T) {
	values, err := Generate(Spec{Kind: KindSine, Frequency: 480, Amplitude: 0.5, Rate: 48000})
	require.NoError(t, err)
	require.Len(t, values, 100)

	assert.InDelta(t, 0, values[0], 1e-6)
	assert.InDelta(t, 0.5, values[25], 1e-6)
	assert.InDelta(t, -0.5, values[75], 1e-6)
}

func TestGenerate_SineRequiresFrequency(t *testing.T) {
	_, err := Generate(Spec{Kind: KindSine, Amplitude: 0.5})
	assert.Error(t, err)
}

func TestGenerate_BoundsLength(t *testing.T) {
	_, err := Generate(Spec{Kind: KindSine, Frequency: 0.0001, Amplitude: 0.5, Rate: 48000})
	assert.ErrorContains(t, err, ">= 1 Hz")

	// one hertz at a very high rate still exceeds the cap
	_, err = Generate(Spec{Kind: KindSine, Frequency: 1, Amplitude: 0.5, Rate: 4 * MaxLength})
	assert.ErrorContains(t, err, "exceeds")

	values, err := Generate(Spec{Kind: KindSine, Frequency: MinFrequency, Amplitude: 0.5, Rate: 48000})
	require.NoError(t, err)
	assert.Len(t, values, 48000)

	_, err = Generate(Spec{Kind: KindNoise, Amplitude: 0.1, Length: MaxLength + 1})
	assert.ErrorContains(t, err, "exceeds")
}

func TestGenerate_NoiseIsDeterministic(t *testing.T) {
	spec := Spec{Kind: KindNoise, Amplitude: 0.2, Length: 64, Seed: 42}

	a, err := Generate(spec)
	require.NoError(t, err)
	b, err := Generate(spec)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	for _, v := range a {
		assert.LessOrEqual(t, math.Abs(float64(v)), 0.2)
	}
}

func TestGenerate_UnknownKind(t *testing.T) {
	_, err := Generate(Spec{Kind: "square"})
	assert.Error(t, err)
}
