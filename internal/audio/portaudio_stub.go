//go:build !portaudio

package audio

import "fmt"

// PortAudioHost is a placeholder when built without the portaudio tag
type PortAudioHost struct{}

// NewPortAudioHost fails because PortAudio support was not compiled in
func NewPortAudioHost() (*PortAudioHost, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}

func (h *PortAudioHost) Name() string {
	return string(BackendTypePortAudio)
}

func (h *PortAudioHost) Devices(kind DeviceKind) ([]DeviceInfo, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}

func (h *PortAudioHost) OpenStream(dev DeviceInfo, cfg StreamConfig, onData DataFunc, onError ErrorFunc) (Stream, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}

func (h *PortAudioHost) Close() error {
	return nil
}
