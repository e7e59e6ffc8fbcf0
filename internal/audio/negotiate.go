package audio

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/audiolibrelab/antirec/internal/config"
	"github.com/audiolibrelab/antirec/internal/sample"
)

// FallbackRate is used when a device reports a configuration without a rate
const FallbackRate = 48000

// NegotiateOptions carries the configuration inputs of device negotiation
type NegotiateOptions struct {
	VirtualOutputDevice string
	Selection           string // config.SelectionFirst or config.SelectionScored
}

// OptionsFromConfig extracts negotiation options from a resolved config
func OptionsFromConfig(cfg *config.Config) NegotiateOptions {
	return NegotiateOptions{
		VirtualOutputDevice: cfg.Audio.VirtualOutputDevice,
		Selection:           cfg.Audio.Selection,
	}
}

// Endpoint is a device together with the layout it will be opened with
type Endpoint struct {
	Device DeviceInfo   `json:"device"`
	Config StreamConfig `json:"config"`
}

// Negotiation is the outcome of device and format selection for a session
type Negotiation struct {
	Input   Endpoint `json:"input"`
	Output  Endpoint `json:"output"`
	Virtual bool     `json:"virtual_output"`
}

// Negotiate picks the input and output devices and their stream layouts
func Negotiate(host Host, opts NegotiateOptions) (*Negotiation, error) {
	inputs, err := host.Devices(Capture)
	if err != nil {
		return nil, err
	}
	input, err := DefaultDevice(inputs, Capture)
	if err != nil {
		return nil, err
	}

	outputs, err := host.Devices(Playback)
	if err != nil {
		return nil, err
	}
	output, virtual, err := SelectOutput(outputs, opts.VirtualOutputDevice)
	if err != nil {
		return nil, err
	}

	inCfg, err := ChooseConfig(input, opts.Selection)
	if err != nil {
		return nil, err
	}
	outCfg, err := ChooseConfig(output, opts.Selection)
	if err != nil {
		return nil, err
	}

	n := &Negotiation{
		Input:   Endpoint{Device: input, Config: inCfg},
		Output:  Endpoint{Device: output, Config: outCfg},
		Virtual: virtual,
	}

	slog.Info("Devices negotiated",
		"host", host.Name(),
		"input", input.Name, "input_config", inCfg.String(),
		"output", output.Name, "output_config", outCfg.String(),
		"virtual_output", virtual)

	return n, nil
}

// DefaultDevice returns the device flagged as the platform default. Some
// backends flag none, in which case the first enumerated device stands in.
func DefaultDevice(devices []DeviceInfo, kind DeviceKind) (DeviceInfo, error) {
	if len(devices) == 0 {
		if kind == Capture {
			return DeviceInfo{}, ErrNoInputDevice
		}
		return DeviceInfo{}, ErrNoOutputDevice
	}

	for _, d := range devices {
		if d.IsDefault {
			return d, nil
		}
	}

	slog.Debug("No device flagged as default, using first enumerated", "kind", kind, "device", devices[0].Name)
	return devices[0], nil
}

// SelectOutput prefers the output whose name exactly matches virtualName and
// falls back to the default output.
func SelectOutput(devices []DeviceInfo, virtualName string) (DeviceInfo, bool, error) {
	if virtualName != "" {
		for _, d := range devices {
			if d.Name == virtualName {
				return d, true, nil
			}
		}
		slog.Debug("Virtual output device not present, using default output", "virtual", virtualName)
	}

	d, err := DefaultDevice(devices, Playback)
	return d, false, err
}

// ChooseConfig picks the stream layout for a device.
//
// With the first selection, the first reported configuration is used at its
// maximum rate. The scored selection ranks configurations by supported
// format, then stereo, then a rate of at least 44.1kHz, then the higher
// rate, keeping enumeration order on ties.
func ChooseConfig(dev DeviceInfo, selection string) (StreamConfig, error) {
	if len(dev.Configs) == 0 {
		return StreamConfig{}, fmt.Errorf("device %q reports no supported configurations", dev.Name)
	}

	chosen := dev.Configs[0]
	if selection == config.SelectionScored {
		ranked := slices.Clone(dev.Configs)
		slices.SortStableFunc(ranked, func(a, b ConfigRange) int {
			return scoreConfig(b) - scoreConfig(a)
		})
		chosen = ranked[0]
	}

	if !chosen.Format.Supported() {
		return StreamConfig{}, fmt.Errorf("device %q: %w: %s", dev.Name, sample.ErrUnsupportedFormat, chosen.Format)
	}

	rate := chosen.MaxRate
	if rate <= 0 {
		rate = FallbackRate
	}
	channels := chosen.Channels
	if channels <= 0 {
		channels = 2
	}

	return StreamConfig{Format: chosen.Format, Channels: channels, SampleRate: rate}, nil
}

func scoreConfig(c ConfigRange) int {
	score := 0
	if c.Format.Supported() {
		score += 1 << 30
	}
	if c.Channels == 2 {
		score += 1 << 29
	}
	if c.MaxRate >= 44100 {
		score += 1 << 28
	}
	// rates stay far below 1<<28
	return score + c.MaxRate
}
