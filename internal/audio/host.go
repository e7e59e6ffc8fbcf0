package audio

import (
	"errors"
	"fmt"

	"github.com/audiolibrelab/antirec/internal/sample"
)

var (
	// ErrNoInputDevice is returned when the host exposes no capture device
	ErrNoInputDevice = errors.New("no input device available")
	// ErrNoOutputDevice is returned when the host exposes no playback device
	ErrNoOutputDevice = errors.New("no output device available")
	// ErrDeviceStopped is reported when a driver stops a stream on its own
	ErrDeviceStopped = errors.New("device stopped unexpectedly")
)

// DeviceKind distinguishes capture from playback devices
type DeviceKind int

const (
	Capture DeviceKind = iota + 1
	Playback
)

func (k DeviceKind) String() string {
	switch k {
	case Capture:
		return "capture"
	case Playback:
		return "playback"
	}
	return fmt.Sprintf("DeviceKind(%d)", int(k))
}

// ConfigRange is one supported configuration reported by a device
type ConfigRange struct {
	Format   sample.Format `json:"format"`
	Channels int           `json:"channels"`
	MinRate  int           `json:"min_rate"`
	MaxRate  int           `json:"max_rate"`
}

// DeviceInfo describes an enumerated device
type DeviceInfo struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Kind      DeviceKind    `json:"-"`
	IsDefault bool          `json:"is_default"`
	Configs   []ConfigRange `json:"configs"`

	// backend specific handle used to open the device
	native any
}

// StreamConfig is the concrete layout a stream is opened with
type StreamConfig struct {
	Format     sample.Format `json:"format"`
	Channels   int           `json:"channels"`
	SampleRate int           `json:"sample_rate"`
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("%s/%dch/%dHz", c.Format, c.Channels, c.SampleRate)
}

// DataFunc is invoked on the driver thread for every period. For capture
// streams buf holds the recorded interleaved samples; for playback streams
// the callback must fill buf completely.
type DataFunc func(buf []byte)

// ErrorFunc receives stream errors reported by the driver
type ErrorFunc func(err error)

// Stream is an opened device stream
type Stream interface {
	Start() error
	Pause() error
	Close() error
}

// Host enumerates devices and opens streams on one audio API
type Host interface {
	Name() string
	Devices(kind DeviceKind) ([]DeviceInfo, error)
	OpenStream(dev DeviceInfo, cfg StreamConfig, onData DataFunc, onError ErrorFunc) (Stream, error)
	Close() error
}

// NewDeviceInfo builds a device description for hosts implemented outside
// this package
func NewDeviceInfo(id, name string, kind DeviceKind, isDefault bool, configs ...ConfigRange) DeviceInfo {
	return DeviceInfo{
		ID:        id,
		Name:      name,
		Kind:      kind,
		IsDefault: isDefault,
		Configs:   configs,
	}
}
