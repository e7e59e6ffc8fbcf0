// Package audiotest provides an in-memory audio host whose streams are
// driven by hand, for exercising pipelines without hardware.
package audiotest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/audiolibrelab/antirec/internal/audio"
	"github.com/audiolibrelab/antirec/internal/sample"
)

// Host is a fake audio.Host
type Host struct {
	mu      sync.Mutex
	inputs  []audio.DeviceInfo
	outputs []audio.DeviceInfo
	streams []*Stream

	// OpenErr, when set for a kind, fails OpenStream for that kind
	OpenErr map[audio.DeviceKind]error
	// StartErr, when set for a kind, fails Start for streams of that kind
	StartErr map[audio.DeviceKind]error
	// DevicesErr fails device enumeration
	DevicesErr error

	closed bool
}

// NewHost returns a host with no devices
func NewHost() *Host {
	return &Host{
		OpenErr:  map[audio.DeviceKind]error{},
		StartErr: map[audio.DeviceKind]error{},
	}
}

// NewDuplexHost returns a host with one default input and one default output,
// both offering cfg
func NewDuplexHost(cfg audio.StreamConfig) *Host {
	h := NewHost()
	h.AddDevice(audio.Capture, "Microphone", true, cfg)
	h.AddDevice(audio.Playback, "Speakers", true, cfg)
	return h
}

// AddDevice registers a device offering the given layouts
func (h *Host) AddDevice(kind audio.DeviceKind, name string, isDefault bool, cfgs ...audio.StreamConfig) audio.DeviceInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	ranges := make([]audio.ConfigRange, len(cfgs))
	for i, c := range cfgs {
		ranges[i] = audio.ConfigRange{Format: c.Format, Channels: c.Channels, MinRate: c.SampleRate, MaxRate: c.SampleRate}
	}

	id := fmt.Sprintf("%s-%d", kind, len(h.inputs)+len(h.outputs))
	dev := audio.NewDeviceInfo(id, name, kind, isDefault, ranges...)
	if kind == audio.Capture {
		h.inputs = append(h.inputs, dev)
	} else {
		h.outputs = append(h.outputs, dev)
	}
	return dev
}

func (h *Host) Name() string {
	return "fake"
}

func (h *Host) Devices(kind audio.DeviceKind) ([]audio.DeviceInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.DevicesErr != nil {
		return nil, h.DevicesErr
	}
	if kind == audio.Capture {
		return append([]audio.DeviceInfo(nil), h.inputs...), nil
	}
	return append([]audio.DeviceInfo(nil), h.outputs...), nil
}

func (h *Host) OpenStream(dev audio.DeviceInfo, cfg audio.StreamConfig, onData audio.DataFunc, onError audio.ErrorFunc) (audio.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.OpenErr[dev.Kind]; err != nil {
		return nil, err
	}

	s := &Stream{
		Device:   dev,
		Config:   cfg,
		onData:   onData,
		onError:  onError,
		startErr: h.StartErr[dev.Kind],
	}
	h.streams = append(h.streams, s)
	return s, nil
}

func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Closed reports whether Close was called
func (h *Host) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Streams returns every stream opened so far
func (h *Host) Streams() []*Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Stream(nil), h.streams...)
}

// Stream returns the most recently opened stream of kind, or nil
func (h *Host) Stream(kind audio.DeviceKind) *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.streams) - 1; i >= 0; i-- {
		if h.streams[i].Device.Kind == kind {
			return h.streams[i]
		}
	}
	return nil
}

// ErrNotRunning is returned when a paused or closed stream is driven
var ErrNotRunning = errors.New("stream not running")

// Stream is a fake audio.Stream. Tests feed capture periods with Capture
// and pull playback periods with Render.
type Stream struct {
	Device audio.DeviceInfo
	Config audio.StreamConfig

	mu       sync.Mutex
	onData   audio.DataFunc
	onError  audio.ErrorFunc
	startErr error
	running  bool
	started  int
	paused   int
	closed   bool
}

func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	if s.closed {
		return ErrNotRunning
	}
	s.running = true
	s.started++
	return nil
}

func (s *Stream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.paused++
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.closed = true
	return nil
}

// Running reports whether the stream is started and not paused
func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Closed reports whether Close was called
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Paused reports whether Pause was called at least once
func (s *Stream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused > 0
}

// Capture delivers one period of normalized samples to the data callback,
// encoded in the stream's format
func (s *Stream) Capture(samples []float32) error {
	codec, err := sample.NewCodec(s.Config.Format)
	if err != nil {
		return err
	}
	buf := make([]byte, len(samples)*s.Config.Format.Size())
	codec.Encode(buf, samples)
	return s.CaptureRaw(buf)
}

// CaptureRaw delivers one period of raw bytes to the data callback
func (s *Stream) CaptureRaw(buf []byte) error {
	s.mu.Lock()
	running, onData := s.running, s.onData
	s.mu.Unlock()

	if !running {
		return ErrNotRunning
	}
	onData(buf)
	return nil
}

// Render asks the data callback for n samples and returns them normalized
func (s *Stream) Render(n int) ([]float32, error) {
	buf, err := s.RenderRaw(n)
	if err != nil {
		return nil, err
	}
	codec, err := sample.NewCodec(s.Config.Format)
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	codec.Decode(out, buf)
	return out, nil
}

// RenderRaw asks the data callback to fill n samples and returns the raw
// bytes. The buffer starts out as garbage so unfilled slots show.
func (s *Stream) RenderRaw(n int) ([]byte, error) {
	s.mu.Lock()
	running, onData := s.running, s.onData
	s.mu.Unlock()

	if !running {
		return nil, ErrNotRunning
	}
	buf := make([]byte, n*s.Config.Format.Size())
	for i := range buf {
		buf[i] = 0xA5
	}
	onData(buf)
	return buf, nil
}

// Fail reports err through the stream's error callback
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	onError := s.onError
	s.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}
