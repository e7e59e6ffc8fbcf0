//go:build portaudio

package audio

import (
	"fmt"
	"log/slog"
	"strconv"
	"unsafe"

	"github.com/gordonklaus/portaudio"

	"github.com/audiolibrelab/antirec/internal/sample"
)

// PortAudioHost implements Host on top of PortAudio
type PortAudioHost struct{}

// NewPortAudioHost initializes the PortAudio library
func NewPortAudioHost() (*PortAudioHost, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudioHost{}, nil
}

func (h *PortAudioHost) Name() string {
	return string(BackendTypePortAudio)
}

// Devices lists devices with at least one channel in the requested direction.
// PortAudio converts formats itself, so every device reports f32, i16 and u8
// at its default rate, capped to stereo.
func (h *PortAudioHost) Devices(kind DeviceKind) ([]DeviceInfo, error) {
	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s devices: %w", kind, err)
	}

	var def *portaudio.DeviceInfo
	if kind == Capture {
		def, _ = portaudio.DefaultInputDevice()
	} else {
		def, _ = portaudio.DefaultOutputDevice()
	}

	var devices []DeviceInfo
	for _, d := range all {
		channels := d.MaxOutputChannels
		if kind == Capture {
			channels = d.MaxInputChannels
		}
		if channels <= 0 {
			continue
		}
		channels = min(channels, 2)
		rate := int(d.DefaultSampleRate)

		devices = append(devices, DeviceInfo{
			ID:        strconv.Itoa(d.Index),
			Name:      d.Name,
			Kind:      kind,
			IsDefault: def != nil && def.Index == d.Index,
			Configs: []ConfigRange{
				{Format: sample.FormatF32, Channels: channels, MinRate: rate, MaxRate: rate},
				{Format: sample.FormatI16, Channels: channels, MinRate: rate, MaxRate: rate},
				{Format: sample.FormatU8, Channels: channels, MinRate: rate, MaxRate: rate},
			},
			native: d,
		})
	}
	return devices, nil
}

// OpenStream opens a callback stream on one device. The typed buffers
// PortAudio hands out are viewed as raw bytes so the sample codecs apply.
func (h *PortAudioHost) OpenStream(dev DeviceInfo, cfg StreamConfig, onData DataFunc, onError ErrorFunc) (Stream, error) {
	info, ok := dev.native.(*portaudio.DeviceInfo)
	if !ok {
		return nil, fmt.Errorf("device %q was not enumerated by portaudio", dev.Name)
	}

	params := portaudio.StreamParameters{
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}
	xrunFlag := portaudio.OutputUnderflow
	if dev.Kind == Capture {
		params.Input = portaudio.StreamDeviceParameters{Device: info, Channels: cfg.Channels, Latency: info.DefaultLowInputLatency}
		xrunFlag = portaudio.InputOverflow
	} else {
		params.Output = portaudio.StreamDeviceParameters{Device: info, Channels: cfg.Channels, Latency: info.DefaultLowOutputLatency}
	}

	report := func(flags portaudio.StreamCallbackFlags) {
		if flags&xrunFlag != 0 && onError != nil {
			onError(fmt.Errorf("%s device %q: driver reported xrun", dev.Kind, dev.Name))
		}
	}

	var callback any
	switch cfg.Format {
	case sample.FormatF32:
		callback = func(buf []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			report(flags)
			onData(bytesOf(buf))
		}
	case sample.FormatI16:
		callback = func(buf []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			report(flags)
			onData(bytesOf(buf))
		}
	case sample.FormatU8:
		callback = func(buf []uint8, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			report(flags)
			onData(buf)
		}
	default:
		return nil, fmt.Errorf("%w: %s on portaudio", sample.ErrUnsupportedFormat, cfg.Format)
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s stream on %q: %w", dev.Kind, dev.Name, err)
	}

	slog.Debug("portaudio stream opened", "kind", dev.Kind, "device", dev.Name, "config", cfg.String())
	return &portAudioStream{stream: stream}, nil
}

// bytesOf reinterprets a sample slice as its underlying bytes
func bytesOf[T float32 | int16](buf []T) []byte {
	if len(buf) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), len(buf)*int(unsafe.Sizeof(zero)))
}

// Close terminates the PortAudio library
func (h *PortAudioHost) Close() error {
	return portaudio.Terminate()
}

type portAudioStream struct {
	stream *portaudio.Stream
}

func (s *portAudioStream) Start() error {
	return s.stream.Start()
}

func (s *portAudioStream) Pause() error {
	return s.stream.Stop()
}

func (s *portAudioStream) Close() error {
	return s.stream.Close()
}
