package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/audiolibrelab/antirec/internal/perturb"
	"github.com/audiolibrelab/antirec/internal/relay"
)

const (
	DefaultProfile             = "default"
	DefaultVirtualOutputDevice = "Line 1 (Virtual Audio Cable)"
	DefaultPort                = "8080"

	SelectionFirst  = "first"
	SelectionScored = "scored"

	inherited       = "inherited"
	profileSpecific = "profile-specific"
)

type DefinitionsConfig struct {
	Perturbations []PerturbationDefinition `mapstructure:"perturbations" yaml:"perturbations"`
}

// PerturbationDefinition describes how the offsets of a session are produced
type PerturbationDefinition struct {
	ID        string    `mapstructure:"id" yaml:"id"`
	Name      string    `mapstructure:"name" yaml:"name"`
	Kind      string    `mapstructure:"kind" yaml:"kind"` // "sequence", "sine", "noise"
	Values    []float64 `mapstructure:"values" yaml:"values,omitempty"`
	Frequency float64   `mapstructure:"frequency" yaml:"frequency,omitempty"`
	Amplitude float64   `mapstructure:"amplitude" yaml:"amplitude,omitempty"`
	Rate      int       `mapstructure:"rate" yaml:"rate,omitempty"`
	Length    int       `mapstructure:"length" yaml:"length,omitempty"`
	Seed      uint64    `mapstructure:"seed" yaml:"seed,omitempty"`
}

type PerturbationReference struct {
	Ref       string   `mapstructure:"ref" yaml:"ref"`
	Amplitude *float64 `mapstructure:"amplitude,omitempty" yaml:"amplitude,omitempty"`
	Frequency *float64 `mapstructure:"frequency,omitempty" yaml:"frequency,omitempty"`
}

type GlobalsConfig struct {
	DataDirectory string `mapstructure:"data_directory" yaml:"data_directory"`
}

type AudioConfig struct {
	Backend             string `mapstructure:"backend" yaml:"backend"` // "auto", "miniaudio", "portaudio"
	VirtualOutputDevice string `mapstructure:"virtual_output_device" yaml:"virtual_output_device"`
	Selection           string `mapstructure:"selection" yaml:"selection"` // "first", "scored"
}

type RelayConfig struct {
	Mode       string `mapstructure:"mode" yaml:"mode"` // "fifo", "lifo"
	CapacityMs int    `mapstructure:"capacity_ms" yaml:"capacity_ms"`
}

type SessionConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RecorderQueue int           `mapstructure:"recorder_queue" yaml:"recorder_queue"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
	MDNS bool   `mapstructure:"mdns" yaml:"mdns"`
	Name string `mapstructure:"name" yaml:"name,omitempty"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Audio        *AudioConfig              `mapstructure:"audio,omitempty" yaml:"audio,omitempty"`
	Definitions  *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
	Server       *ServerConfig             `mapstructure:"server,omitempty" yaml:"server,omitempty"`
}

type ConfigProfile struct {
	Audio        AudioConfig            `mapstructure:"audio" yaml:"audio"`
	Perturbation *PerturbationReference `mapstructure:"perturbation" yaml:"perturbation"`
	Relay        RelayConfig            `mapstructure:"relay" yaml:"relay"`
	Session      SessionConfig          `mapstructure:"session" yaml:"session"`
}

// Config is a fully resolved profile
type Config struct {
	Profile       string                 `yaml:"profile"`
	DataDirectory string                 `yaml:"data_directory"`
	Audio         AudioConfig            `yaml:"audio"`
	Perturbation  PerturbationDefinition `yaml:"perturbation"`
	Relay         RelayConfig            `yaml:"relay"`
	Session       SessionConfig          `yaml:"session"`
	Server        ServerConfig           `yaml:"server"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type InheritanceInfo struct {
	Audio struct {
		Backend             string // "inherited" or "profile-specific"
		VirtualOutputDevice string
		Selection           string
	}
	Perturbation struct {
		Ref       string
		Amplitude string
		Frequency string
	}
	Relay struct {
		Mode       string
		CapacityMs string
	}
	Session struct {
		PollInterval  string
		RecorderQueue string
	}
}

var builtinPerturbation = PerturbationDefinition{
	ID:        "sine_440",
	Name:      "sine",
	Kind:      string(perturb.KindSine),
	Frequency: 440,
	Amplitude: 0.05,
	Rate:      perturb.DefaultRate,
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Profile:       DefaultProfile,
		DataDirectory: expandPath(defaultDataDirectory()),
		Audio: AudioConfig{
			Backend:             "auto",
			VirtualOutputDevice: DefaultVirtualOutputDevice,
			Selection:           SelectionFirst,
		},
		Perturbation: builtinPerturbation,
		Relay: RelayConfig{
			Mode:       string(relay.ModeFIFO),
			CapacityMs: 500,
		},
		Session: SessionConfig{
			PollInterval:  time.Second,
			RecorderQueue: 16384,
		},
		Server: ServerConfig{
			Port: DefaultPort,
		},
		Inheritance: allInherited(),
	}
}

func defaultDataDirectory() string {
	return filepath.Join("~", ".local", "share", "top.linjhs.anti-rec")
}

// DefaultPath returns the config file location used when --config is not given
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/antirec.yaml")
}

// WavesDirectory is where session recordings are written
func (c *Config) WavesDirectory() string {
	return filepath.Join(c.DataDirectory, "waves")
}

// PerturbationSpec converts the resolved definition into a generator spec
func (c *Config) PerturbationSpec() perturb.Spec {
	return c.Perturbation.Spec()
}

// Spec converts the definition into a generator spec
func (d PerturbationDefinition) Spec() perturb.Spec {
	return perturb.Spec{
		Kind:      perturb.Kind(d.Kind),
		Values:    d.Values,
		Frequency: d.Frequency,
		Amplitude: d.Amplitude,
		Rate:      d.Rate,
		Length:    d.Length,
		Seed:      d.Seed,
	}
}

// Load resolves the given profile from configFile. A missing file yields the
// built-in defaults.
func Load(configFile, profile string) (*Config, error) {
	if configFile == "" {
		configFile = DefaultPath()
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Config file not found, using built-in defaults", "path", configFile)
		cfg := Default()
		if profile != "" && profile != DefaultProfile {
			return nil, fmt.Errorf("configuration profile '%s' not found", profile)
		}
		return cfg, nil
	}

	return LoadWithProfile(configFile, profile)
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	// Validate configuration format first
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return Resolve(rootConfig, profile)
}

// Resolve builds the effective configuration for a profile. Values come
// from the built-in defaults, then the global sections, then the "default"
// profile, then the selected profile.
func Resolve(rootConfig *RootConfig, profile string) (*Config, error) {
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = DefaultProfile
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	result := Default()
	result.Profile = configName

	if rootConfig.Globals != nil && rootConfig.Globals.DataDirectory != "" {
		result.DataDirectory = expandPath(rootConfig.Globals.DataDirectory)
	}
	if rootConfig.Audio != nil {
		overlayAudio(&result.Audio, *rootConfig.Audio, nil)
	}
	if rootConfig.Server != nil {
		if rootConfig.Server.Port != "" {
			result.Server.Port = rootConfig.Server.Port
		}
		result.Server.MDNS = rootConfig.Server.MDNS
		result.Server.Name = rootConfig.Server.Name
	}

	// Merge with default config if it exists and we're not already using default
	if configName != DefaultProfile {
		if defaultProfile, ok := rootConfig.Configs[DefaultProfile]; ok {
			if err := applyProfile(result, defaultProfile, rootConfig.Definitions, nil); err != nil {
				return nil, fmt.Errorf("error resolving default configuration: %w", err)
			}
		}
	}

	if err := applyProfile(result, selectedProfile, rootConfig.Definitions, result.Inheritance); err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
	}

	if _, err := perturb.Generate(result.PerturbationSpec()); err != nil {
		return nil, fmt.Errorf("profile '%s': invalid perturbation '%s': %w", configName, result.Perturbation.ID, err)
	}

	return result, nil
}

// applyProfile overlays the non-empty fields of profile onto cfg. When track
// is non-nil, the overlaid fields are marked profile-specific.
func applyProfile(cfg *Config, profile *ConfigProfile, definitions *DefinitionsConfig, track *InheritanceInfo) error {
	if profile == nil {
		return fmt.Errorf("profile cannot be nil")
	}

	overlayAudio(&cfg.Audio, profile.Audio, track)

	if profile.Perturbation != nil {
		def, err := resolvePerturbation(profile.Perturbation, definitions)
		if err != nil {
			return err
		}
		cfg.Perturbation = def
		if track != nil {
			track.Perturbation.Ref = profileSpecific
			if profile.Perturbation.Amplitude != nil {
				track.Perturbation.Amplitude = profileSpecific
			}
			if profile.Perturbation.Frequency != nil {
				track.Perturbation.Frequency = profileSpecific
			}
		}
	}

	if profile.Relay.Mode != "" {
		cfg.Relay.Mode = strings.ToLower(profile.Relay.Mode)
		if track != nil {
			track.Relay.Mode = profileSpecific
		}
	}
	if profile.Relay.CapacityMs != 0 {
		cfg.Relay.CapacityMs = profile.Relay.CapacityMs
		if track != nil {
			track.Relay.CapacityMs = profileSpecific
		}
	}
	if profile.Session.PollInterval != 0 {
		cfg.Session.PollInterval = profile.Session.PollInterval
		if track != nil {
			track.Session.PollInterval = profileSpecific
		}
	}
	if profile.Session.RecorderQueue != 0 {
		cfg.Session.RecorderQueue = profile.Session.RecorderQueue
		if track != nil {
			track.Session.RecorderQueue = profileSpecific
		}
	}

	return nil
}

func overlayAudio(dst *AudioConfig, src AudioConfig, track *InheritanceInfo) {
	if src.Backend != "" {
		dst.Backend = strings.ToLower(src.Backend)
		if track != nil {
			track.Audio.Backend = profileSpecific
		}
	}
	if src.VirtualOutputDevice != "" {
		dst.VirtualOutputDevice = src.VirtualOutputDevice
		if track != nil {
			track.Audio.VirtualOutputDevice = profileSpecific
		}
	}
	if src.Selection != "" {
		dst.Selection = strings.ToLower(src.Selection)
		if track != nil {
			track.Audio.Selection = profileSpecific
		}
	}
}

// resolvePerturbation looks up a definition and applies the reference's overrides
func resolvePerturbation(ref *PerturbationReference, definitions *DefinitionsConfig) (PerturbationDefinition, error) {
	if ref.Ref == "" {
		return PerturbationDefinition{}, fmt.Errorf("perturbation: 'ref' is required")
	}

	def, ok := findDefinition(definitions, ref.Ref)
	if !ok {
		return PerturbationDefinition{}, fmt.Errorf("perturbation: reference '%s' not found in definitions", ref.Ref)
	}

	if ref.Amplitude != nil {
		def.Amplitude = *ref.Amplitude
	}
	if ref.Frequency != nil {
		def.Frequency = *ref.Frequency
	}
	return def, nil
}

func findDefinition(definitions *DefinitionsConfig, id string) (PerturbationDefinition, bool) {
	if definitions == nil {
		return PerturbationDefinition{}, false
	}
	for _, def := range definitions.Perturbations {
		if def.ID == id {
			def.Values = append([]float64(nil), def.Values...)
			return def, true
		}
	}
	return PerturbationDefinition{}, false
}

// FindPerturbation returns a definition by id from a config file
func FindPerturbation(configFile, id string) (PerturbationDefinition, error) {
	if id == builtinPerturbation.ID {
		return builtinPerturbation, nil
	}
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return PerturbationDefinition{}, err
	}
	def, ok := findDefinition(rootConfig.Definitions, id)
	if !ok {
		return PerturbationDefinition{}, fmt.Errorf("perturbation '%s' not found in definitions", id)
	}
	return def, nil
}

func allInherited() *InheritanceInfo {
	info := &InheritanceInfo{}
	info.Audio.Backend = inherited
	info.Audio.VirtualOutputDevice = inherited
	info.Audio.Selection = inherited
	info.Perturbation.Ref = inherited
	info.Perturbation.Amplitude = inherited
	info.Perturbation.Frequency = inherited
	info.Relay.Mode = inherited
	info.Relay.CapacityMs = inherited
	info.Session.PollInterval = inherited
	info.Session.RecorderQueue = inherited
	return info
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if _, ok := rootConfig.Configs[newActiveConfig]; !ok {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	// Set environment variable prefix
	v.SetEnvPrefix("ANTIREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(&rootConfig); err != nil {
		return nil, err
	}

	return &rootConfig, nil
}

// Validate checks a parsed configuration file
func Validate(rootConfig *RootConfig) error {
	if err := validateDefinitions(rootConfig.Definitions); err != nil {
		return fmt.Errorf("invalid definitions: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return fmt.Errorf("configs section cannot be empty")
	}

	if rootConfig.ActiveConfig != "" {
		if _, ok := rootConfig.Configs[rootConfig.ActiveConfig]; !ok {
			return fmt.Errorf("active_config '%s' does not match any profile", rootConfig.ActiveConfig)
		}
	}

	if rootConfig.Audio != nil {
		if err := validateAudio(*rootConfig.Audio, "audio"); err != nil {
			return err
		}
	}

	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			return fmt.Errorf("invalid config '%s': profile is empty", configName)
		}
		if err := validateProfile(configProfile, rootConfig.Definitions); err != nil {
			return fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return nil
}

// validateDefinitions validates the definitions section
func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return fmt.Errorf("definitions section is required")
	}

	if len(definitions.Perturbations) == 0 {
		return fmt.Errorf("definitions.perturbations cannot be empty")
	}

	seenIDs := make(map[string]bool)

	for i, def := range definitions.Perturbations {
		if def.ID == "" {
			return fmt.Errorf("definitions.perturbations[%d]: 'id' is required", i)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("definitions.perturbations[%d]: duplicate ID '%s'", i, def.ID)
		}
		seenIDs[def.ID] = true

		if err := validatePerturbationDefinition(def, fmt.Sprintf("definitions.perturbations[%d]", i)); err != nil {
			return err
		}
	}

	return nil
}

// validatePerturbationDefinition validates a single perturbation definition
func validatePerturbationDefinition(def PerturbationDefinition, prefix string) error {
	if def.Name == "" {
		return fmt.Errorf("%s: 'name' is required", prefix)
	}

	if def.Rate < 0 {
		return fmt.Errorf("%s: 'rate' must be >= 0, got: %d", prefix, def.Rate)
	}
	if def.Length < 0 {
		return fmt.Errorf("%s: 'length' must be >= 0, got: %d", prefix, def.Length)
	}

	switch perturb.Kind(def.Kind) {
	case perturb.KindSequence:
		if len(def.Values) == 0 {
			return fmt.Errorf("%s: kind 'sequence' requires non-empty 'values'", prefix)
		}
	case perturb.KindSine:
		if def.Frequency <= 0 {
			return fmt.Errorf("%s: 'frequency' must be > 0, got: %.2f", prefix, def.Frequency)
		}
		if def.Frequency < perturb.MinFrequency {
			return fmt.Errorf("%s: 'frequency' must be >= %g Hz, got: %g", prefix, perturb.MinFrequency, def.Frequency)
		}
		if def.Amplitude <= 0 {
			return fmt.Errorf("%s: 'amplitude' must be > 0, got: %.2f", prefix, def.Amplitude)
		}
	case perturb.KindNoise:
		if def.Amplitude <= 0 {
			return fmt.Errorf("%s: 'amplitude' must be > 0, got: %.2f", prefix, def.Amplitude)
		}
	case "":
		return fmt.Errorf("%s: 'kind' is required", prefix)
	default:
		return fmt.Errorf("%s: 'kind' must be 'sequence', 'sine' or 'noise', got: %s", prefix, def.Kind)
	}

	if _, err := perturb.Generate(def.Spec()); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}

	return nil
}

// validateProfile validates the references and settings of a config profile
func validateProfile(profile *ConfigProfile, definitions *DefinitionsConfig) error {
	if ref := profile.Perturbation; ref != nil {
		if ref.Ref == "" {
			return fmt.Errorf("perturbation: 'ref' is required")
		}
		if _, ok := findDefinition(definitions, ref.Ref); !ok {
			return fmt.Errorf("perturbation: references undefined perturbation definition '%s'", ref.Ref)
		}
		if ref.Amplitude != nil && *ref.Amplitude <= 0 {
			return fmt.Errorf("perturbation: amplitude override must be > 0, got %.2f", *ref.Amplitude)
		}
		if ref.Frequency != nil && *ref.Frequency <= 0 {
			return fmt.Errorf("perturbation: frequency override must be > 0, got %.2f", *ref.Frequency)
		}
		if ref.Frequency != nil && *ref.Frequency < perturb.MinFrequency {
			return fmt.Errorf("perturbation: frequency override must be >= %g Hz, got %g", perturb.MinFrequency, *ref.Frequency)
		}
	}

	if err := validateAudio(profile.Audio, "audio"); err != nil {
		return err
	}

	if profile.Relay.Mode != "" {
		if _, err := relay.ParseMode(profile.Relay.Mode); err != nil {
			return fmt.Errorf("relay: %w", err)
		}
	}
	if profile.Relay.CapacityMs < 0 {
		return fmt.Errorf("relay: 'capacity_ms' must be >= 0, got %d", profile.Relay.CapacityMs)
	}

	if profile.Session.PollInterval < 0 {
		return fmt.Errorf("session: 'poll_interval' must be >= 0, got %s", profile.Session.PollInterval)
	}
	if profile.Session.RecorderQueue < 0 {
		return fmt.Errorf("session: 'recorder_queue' must be >= 0, got %d", profile.Session.RecorderQueue)
	}

	return nil
}

func validateAudio(audio AudioConfig, prefix string) error {
	switch strings.ToLower(audio.Backend) {
	case "", "auto", "miniaudio", "portaudio":
	default:
		return fmt.Errorf("%s: 'backend' must be 'auto', 'miniaudio' or 'portaudio', got: %s", prefix, audio.Backend)
	}

	switch strings.ToLower(audio.Selection) {
	case "", SelectionFirst, SelectionScored:
	default:
		return fmt.Errorf("%s: 'selection' must be '%s' or '%s', got: %s", prefix, SelectionFirst, SelectionScored, audio.Selection)
	}

	return nil
}
