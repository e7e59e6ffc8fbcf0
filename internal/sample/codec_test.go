package sample

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawI16(values ...int16) []byte {
	b := make([]byte, len(values)*2)
	for i, v := range values {
		binary.NativeEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func rawU16(values ...uint16) []byte {
	b := make([]byte, len(values)*2)
	for i, v := range values {
		binary.NativeEndian.PutUint16(b[i*2:], v)
	}
	return b
}

func rawF32(values ...float32) []byte {
	b := make([]byte, len(values)*4)
	for i, v := range values {
		binary.NativeEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func TestNewCodec_SupportedFormats(t *testing.T) {
	for _, f := range []Format{FormatF32, FormatI16, FormatU16, FormatU8} {
		c, err := NewCodec(f)
		require.NoError(t, err, f.String())
		assert.Equal(t, f, c.Format())
	}
}

func TestNewCodec_Unsupported(t *testing.T) {
	_, err := NewCodec(FormatUnknown)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecode_ExtremesMapToUnit(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		raw    []byte
	}{
		{"f32", FormatF32, rawF32(1.0, -1.0)},
		{"i16", FormatI16, rawI16(math.MaxInt16, math.MinInt16)},
		{"u16", FormatU16, rawU16(math.MaxUint16, 0)},
		{"u8", FormatU8, []byte{math.MaxUint8, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCodec(tt.format)
			require.NoError(t, err)

			dst := make([]float32, 2)
			n := c.Decode(dst, tt.raw)
			require.Equal(t, 2, n)
			assert.InDelta(t, 1.0, dst[0], 1e-6)
			assert.InDelta(t, -1.0, dst[1], 1e-6)
		})
	}
}

func TestDecode_EquilibriumIsZero(t *testing.T) {
	tests := []struct {
		format Format
		raw    []byte
	}{
		{FormatI16, rawI16(0)},
		{FormatU16, rawU16(32768)},
		{FormatU8, []byte{128}},
		{FormatF32, rawF32(0)},
	}

	for _, tt := range tests {
		c, err := NewCodec(tt.format)
		require.NoError(t, err)
		dst := make([]float32, 1)
		c.Decode(dst, tt.raw)
		assert.Equal(t, float32(0), dst[0], tt.format.String())
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	values := []float32{0, 0.25, -0.25, 0.5, -0.75, 1, -1}

	for _, f := range []Format{FormatF32, FormatI16, FormatU16, FormatU8} {
		c, err := NewCodec(f)
		require.NoError(t, err)

		raw := make([]byte, len(values)*f.Size())
		require.Equal(t, len(values), c.Encode(raw, values))

		back := make([]float32, len(values))
		require.Equal(t, len(values), c.Decode(back, raw))

		tolerance := 1e-4
		if f == FormatU8 {
			tolerance = 1.0 / 127
		}
		for i := range values {
			assert.InDelta(t, values[i], back[i], tolerance, "%s sample %d", f, i)
		}
	}
}

func TestEncode_ClampsOutOfRange(t *testing.T) {
	c, err := NewCodec(FormatI16)
	require.NoError(t, err)

	raw := make([]byte, 4)
	c.Encode(raw, []float32{1.7, -3})

	assert.Equal(t, int16(math.MaxInt16), int16(binary.NativeEndian.Uint16(raw[0:])))
	assert.Equal(t, int16(math.MinInt16), int16(binary.NativeEndian.Uint16(raw[2:])))
}

func TestSilence_WritesEquilibrium(t *testing.T) {
	u8, _ := NewCodec(FormatU8)
	buf := []byte{1, 2, 3}
	u8.Silence(buf)
	assert.Equal(t, []byte{128, 128, 128}, buf)

	u16, _ := NewCodec(FormatU16)
	buf = rawU16(1, 2)
	u16.Silence(buf)
	assert.Equal(t, rawU16(32768, 32768), buf)

	f32, _ := NewCodec(FormatF32)
	buf = rawF32(0.5)
	f32.Silence(buf)
	assert.Equal(t, rawF32(0), buf)
}

func TestDecode_PartialBuffer(t *testing.T) {
	c, _ := NewCodec(FormatI16)
	dst := make([]float32, 4)

	// three bytes hold one whole sample
	n := c.Decode(dst, []byte{0, 0, 7})
	assert.Equal(t, 1, n)
}

func TestToPCM16(t *testing.T) {
	assert.Equal(t, int16(math.MaxInt16), ToPCM16(1.0))
	assert.Equal(t, int16(math.MinInt16), ToPCM16(-1.0))
	assert.Equal(t, int16(0), ToPCM16(0))
	assert.Equal(t, int16(math.MaxInt16), ToPCM16(2.5))
	assert.Equal(t, int16(math.MinInt16), ToPCM16(-9))
	assert.Equal(t, int16(0), ToPCM16(float32(math.NaN())))
	assert.InDelta(t, 0.5, FromPCM16(ToPCM16(0.5)), 1e-4)

	// fractions truncate toward zero
	assert.Equal(t, int16(16383), ToPCM16(0.5))
	assert.Equal(t, int16(-16384), ToPCM16(-0.5))
	assert.Equal(t, int16(32766), ToPCM16(0.99999))
	assert.Equal(t, int16(0), ToPCM16(-0.00002))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("F32")
	require.NoError(t, err)
	assert.Equal(t, FormatF32, f)

	f, err = ParseFormat("s16")
	require.NoError(t, err)
	assert.Equal(t, FormatI16, f)

	_, err = ParseFormat("s24")
	assert.Error(t, err)
}
