package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/audiolibrelab/antirec/internal/sample"
)

// MiniaudioHost implements Host on top of miniaudio via malgo
type MiniaudioHost struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMiniaudioHost initializes a miniaudio context using the platform's
// preferred backend
func NewMiniaudioHost() (*MiniaudioHost, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	return &MiniaudioHost{ctx: ctx}, nil
}

func (h *MiniaudioHost) Name() string {
	return string(BackendTypeMiniaudio)
}

// Devices enumerates devices and queries the native formats of each one
func (h *MiniaudioHost) Devices(kind DeviceKind) ([]DeviceInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx == nil {
		return nil, fmt.Errorf("miniaudio host is closed")
	}

	mkind := malgoKind(kind)
	infos, err := h.ctx.Devices(mkind)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s devices: %w", kind, err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		full, err := h.ctx.DeviceInfo(mkind, info.ID, malgo.Shared)
		if err != nil {
			slog.Debug("Device info unavailable, using enumeration data", "device", info.Name(), "error", err)
			full = info
		}

		id := full.ID
		devices = append(devices, DeviceInfo{
			ID:        id.String(),
			Name:      full.Name(),
			Kind:      kind,
			IsDefault: full.IsDefault != 0,
			Configs:   malgoConfigs(full.Formats),
			native:    id,
		})
	}
	return devices, nil
}

// malgoConfigs groups native formats by (format, channels) in enumeration
// order. A device without native formats accepts anything because miniaudio
// converts internally, so it gets a single f32 stereo 48kHz entry.
func malgoConfigs(formats []malgo.DataFormat) []ConfigRange {
	if len(formats) == 0 {
		return []ConfigRange{{Format: sample.FormatF32, Channels: 2, MinRate: 48000, MaxRate: 48000}}
	}

	var configs []ConfigRange
	index := make(map[[2]int]int)
	for _, f := range formats {
		format := malgoFormat(f.Format)
		channels := int(f.Channels)
		if channels == 0 {
			channels = 2
		}
		rate := int(f.SampleRate)

		key := [2]int{int(format), channels}
		if i, ok := index[key]; ok {
			c := &configs[i]
			if rate < c.MinRate {
				c.MinRate = rate
			}
			if rate > c.MaxRate {
				c.MaxRate = rate
			}
			continue
		}
		index[key] = len(configs)
		configs = append(configs, ConfigRange{Format: format, Channels: channels, MinRate: rate, MaxRate: rate})
	}
	return configs
}

func malgoKind(kind DeviceKind) malgo.DeviceType {
	if kind == Playback {
		return malgo.Playback
	}
	return malgo.Capture
}

func malgoFormat(f malgo.FormatType) sample.Format {
	switch f {
	case malgo.FormatF32:
		return sample.FormatF32
	case malgo.FormatS16:
		return sample.FormatI16
	case malgo.FormatU8:
		return sample.FormatU8
	}
	// miniaudio has no unsigned 16-bit format; s24 and s32 have no codec
	return sample.FormatUnknown
}

func toMalgoFormat(f sample.Format) (malgo.FormatType, error) {
	switch f {
	case sample.FormatF32:
		return malgo.FormatF32, nil
	case sample.FormatI16:
		return malgo.FormatS16, nil
	case sample.FormatU8:
		return malgo.FormatU8, nil
	}
	return malgo.FormatUnknown, fmt.Errorf("%w: %s on miniaudio", sample.ErrUnsupportedFormat, f)
}

// OpenStream initializes a capture or playback device in the stopped state
func (h *MiniaudioHost) OpenStream(dev DeviceInfo, cfg StreamConfig, onData DataFunc, onError ErrorFunc) (Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx == nil {
		return nil, fmt.Errorf("miniaudio host is closed")
	}

	format, err := toMalgoFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgoKind(dev.Kind))
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	sub := &deviceConfig.Capture
	if dev.Kind == Playback {
		sub = &deviceConfig.Playback
	}
	sub.Format = format
	sub.Channels = uint32(cfg.Channels)
	if id, ok := dev.native.(malgo.DeviceID); ok {
		sub.DeviceID = id.Pointer()
	}

	s := &miniaudioStream{name: dev.Name, kind: dev.Kind, onError: onError}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			if dev.Kind == Playback {
				onData(pOutput)
			} else {
				onData(pInput)
			}
		},
		Stop: s.stopped,
	}

	device, err := malgo.InitDevice(h.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s device %q: %w", dev.Kind, dev.Name, err)
	}
	s.device = device

	slog.Debug("miniaudio stream opened", "kind", dev.Kind, "device", dev.Name, "config", cfg.String())
	return s, nil
}

// Close releases the miniaudio context
func (h *MiniaudioHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx == nil {
		return nil
	}
	if err := h.ctx.Uninit(); err != nil {
		slog.Warn("malgo context uninit error", "error", err)
	}
	h.ctx.Free()
	h.ctx = nil
	return nil
}

type miniaudioStream struct {
	name    string
	kind    DeviceKind
	device  *malgo.Device
	onError ErrorFunc

	pausing atomic.Bool
}

func (s *miniaudioStream) Start() error {
	s.pausing.Store(false)
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start %s device %q: %w", s.kind, s.name, err)
	}
	return nil
}

func (s *miniaudioStream) Pause() error {
	s.pausing.Store(true)
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("failed to pause %s device %q: %w", s.kind, s.name, err)
	}
	return nil
}

func (s *miniaudioStream) Close() error {
	s.pausing.Store(true)
	s.device.Uninit()
	return nil
}

// stopped runs when miniaudio stops the device. Stops we did not ask for
// are driver errors.
func (s *miniaudioStream) stopped() {
	if s.pausing.Load() || s.onError == nil {
		return
	}
	s.onError(fmt.Errorf("%s device %q: %w", s.kind, s.name, ErrDeviceStopped))
}
