package sample

import (
	"fmt"
	"strings"
)

// Format identifies the native layout of one hardware sample
type Format int

const (
	FormatUnknown Format = iota
	FormatF32
	FormatI16
	FormatU16
	FormatU8
)

// String returns the short name used in logs and configuration
func (f Format) String() string {
	switch f {
	case FormatF32:
		return "f32"
	case FormatI16:
		return "i16"
	case FormatU16:
		return "u16"
	case FormatU8:
		return "u8"
	default:
		return "unknown"
	}
}

// Size returns the number of bytes one sample occupies
func (f Format) Size() int {
	switch f {
	case FormatF32:
		return 4
	case FormatI16, FormatU16:
		return 2
	case FormatU8:
		return 1
	default:
		return 0
	}
}

// Supported reports whether a codec exists for the format
func (f Format) Supported() bool {
	return f.Size() > 0
}

// ParseFormat converts a short name back into a Format
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "f32", "float32":
		return FormatF32, nil
	case "i16", "s16", "int16":
		return FormatI16, nil
	case "u16", "uint16":
		return FormatU16, nil
	case "u8", "uint8":
		return FormatU8, nil
	}
	return FormatUnknown, fmt.Errorf("unknown sample format: %q", name)
}

// MarshalText encodes the format by name so JSON status output stays readable
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}
