package audio

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/antirec/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeMiniaudio BackendType = "miniaudio"
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypeAuto      BackendType = "auto"
)

// NewHost opens the audio host selected by configuration
func NewHost(cfg *config.Config) (Host, error) {
	backendType, err := determineBackend(cfg)
	if err != nil {
		return nil, err
	}

	switch backendType {
	case BackendTypePortAudio:
		return NewPortAudioHost()
	default:
		return NewMiniaudioHost()
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) (BackendType, error) {
	if cfg == nil || cfg.Audio.Backend == "" {
		return BackendTypeMiniaudio, nil
	}

	switch BackendType(strings.ToLower(cfg.Audio.Backend)) {
	case BackendTypeMiniaudio, BackendTypeAuto:
		// miniaudio picks the platform's native API on its own
		return BackendTypeMiniaudio, nil
	case BackendTypePortAudio:
		return BackendTypePortAudio, nil
	}

	return "", fmt.Errorf("unknown audio backend: %q (valid: auto, miniaudio, portaudio)", cfg.Audio.Backend)
}

// GetAvailableBackends returns the backends compiled into this binary
func GetAvailableBackends() []BackendType {
	backends := []BackendType{BackendTypeMiniaudio}

	if host, err := NewPortAudioHost(); err == nil {
		host.Close()
		backends = append(backends, BackendTypePortAudio)
	}

	return backends
}
