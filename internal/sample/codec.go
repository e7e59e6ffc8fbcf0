package sample

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedFormat is returned when no codec exists for a sample format
var ErrUnsupportedFormat = errors.New("unsupported sample format")

// Codec converts between a hardware sample layout and normalized floats.
// Raw buffers are interleaved and in host byte order, which is how both
// miniaudio and PortAudio hand them to callbacks.
type Codec interface {
	Format() Format

	// Decode normalizes len(dst) samples read from src. It returns the
	// number of samples converted, bounded by the whole samples in src.
	Decode(dst []float32, src []byte) int

	// Encode writes the samples of src into dst in the native layout and
	// returns the number written.
	Encode(dst []byte, src []float32) int

	// Silence fills dst with the equilibrium value of the format
	Silence(dst []byte)
}

// NewCodec returns the codec for the given format
func NewCodec(f Format) (Codec, error) {
	switch f {
	case FormatF32:
		return f32Codec{}, nil
	case FormatI16:
		return i16Codec{}, nil
	case FormatU16:
		return u16Codec{}, nil
	case FormatU8:
		return u8Codec{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// Count returns how many whole samples of format f fit in n bytes
func Count(f Format, n int) int {
	if f.Size() == 0 {
		return 0
	}
	return n / f.Size()
}

// Integer formats are scaled asymmetrically so that both extremes of the
// integer range map exactly onto -1.0 and +1.0.
func intToFloat(v, lo, hi int32) float32 {
	if v >= 0 {
		return float32(v) / float32(hi)
	}
	return float32(v) / float32(-lo)
}

func floatToInt(x float32, lo, hi int32) int32 {
	if x != x {
		return 0
	}
	var scaled float64
	if x >= 0 {
		scaled = math.Round(float64(x) * float64(hi))
	} else {
		scaled = math.Round(float64(x) * float64(-lo))
	}
	if scaled > float64(hi) {
		return hi
	}
	if scaled < float64(lo) {
		return lo
	}
	return int32(scaled)
}

type f32Codec struct{}

func (f32Codec) Format() Format { return FormatF32 }

func (f32Codec) Decode(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/4)
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.NativeEndian.Uint32(src[i*4:]))
	}
	return n
}

func (f32Codec) Encode(dst []byte, src []float32) int {
	n := min(len(src), len(dst)/4)
	for i := 0; i < n; i++ {
		binary.NativeEndian.PutUint32(dst[i*4:], math.Float32bits(src[i]))
	}
	return n
}

func (f32Codec) Silence(dst []byte) {
	clear(dst)
}

type i16Codec struct{}

func (i16Codec) Format() Format { return FormatI16 }

func (i16Codec) Decode(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		v := int16(binary.NativeEndian.Uint16(src[i*2:]))
		dst[i] = intToFloat(int32(v), math.MinInt16, math.MaxInt16)
	}
	return n
}

func (i16Codec) Encode(dst []byte, src []float32) int {
	n := min(len(src), len(dst)/2)
	for i := 0; i < n; i++ {
		v := floatToInt(src[i], math.MinInt16, math.MaxInt16)
		binary.NativeEndian.PutUint16(dst[i*2:], uint16(int16(v)))
	}
	return n
}

func (i16Codec) Silence(dst []byte) {
	clear(dst)
}

type u16Codec struct{}

const u16Mid = 1 << 15

func (u16Codec) Format() Format { return FormatU16 }

func (u16Codec) Decode(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		v := int32(binary.NativeEndian.Uint16(src[i*2:])) - u16Mid
		dst[i] = intToFloat(v, -u16Mid, u16Mid-1)
	}
	return n
}

func (u16Codec) Encode(dst []byte, src []float32) int {
	n := min(len(src), len(dst)/2)
	for i := 0; i < n; i++ {
		v := floatToInt(src[i], -u16Mid, u16Mid-1) + u16Mid
		binary.NativeEndian.PutUint16(dst[i*2:], uint16(v))
	}
	return n
}

func (u16Codec) Silence(dst []byte) {
	for i := 0; i+1 < len(dst); i += 2 {
		binary.NativeEndian.PutUint16(dst[i:], u16Mid)
	}
}

type u8Codec struct{}

const u8Mid = 1 << 7

func (u8Codec) Format() Format { return FormatU8 }

func (u8Codec) Decode(dst []float32, src []byte) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = intToFloat(int32(src[i])-u8Mid, -u8Mid, u8Mid-1)
	}
	return n
}

func (u8Codec) Encode(dst []byte, src []float32) int {
	n := min(len(src), len(dst))
	for i := 0; i < n; i++ {
		dst[i] = byte(floatToInt(src[i], -u8Mid, u8Mid-1) + u8Mid)
	}
	return n
}

func (u8Codec) Silence(dst []byte) {
	for i := range dst {
		dst[i] = u8Mid
	}
}
