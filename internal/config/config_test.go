package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithProfile_SelectionAndFallback(t *testing.T) {
	configFile := createTempConfig(t, validConfigYAML)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Profile != "test" {
		t.Errorf("Expected active profile 'test', got %s", cfg.Profile)
	}

	// Profile-specific values
	if cfg.Perturbation.ID != "tone" || cfg.Perturbation.Amplitude != 0.2 {
		t.Errorf("Expected tone perturbation with amplitude 0.2, got %+v", cfg.Perturbation)
	}
	if cfg.Relay.Mode != "lifo" {
		t.Errorf("Expected relay mode 'lifo', got %s", cfg.Relay.Mode)
	}

	// Inherited from the default profile
	if cfg.Relay.CapacityMs != 250 {
		t.Errorf("Expected inherited capacity 250ms, got %d", cfg.Relay.CapacityMs)
	}
	if cfg.Session.RecorderQueue != 4096 {
		t.Errorf("Expected inherited recorder queue 4096, got %d", cfg.Session.RecorderQueue)
	}
	if cfg.Session.PollInterval != time.Second {
		t.Errorf("Expected poll interval 1s, got %s", cfg.Session.PollInterval)
	}

	// Global sections
	if cfg.Audio.Backend != "miniaudio" {
		t.Errorf("Expected backend 'miniaudio', got %s", cfg.Audio.Backend)
	}
	if cfg.Audio.VirtualOutputDevice != "CABLE Input" {
		t.Errorf("Expected virtual device 'CABLE Input', got %s", cfg.Audio.VirtualOutputDevice)
	}
	if cfg.Audio.Selection != SelectionFirst {
		t.Errorf("Expected built-in selection 'first', got %s", cfg.Audio.Selection)
	}
	if cfg.DataDirectory != "/tmp/antirec-data" {
		t.Errorf("Expected data directory /tmp/antirec-data, got %s", cfg.DataDirectory)
	}
	if cfg.WavesDirectory() != filepath.Join("/tmp/antirec-data", "waves") {
		t.Errorf("Unexpected waves directory %s", cfg.WavesDirectory())
	}
}

func TestLoadWithProfile_InheritanceTracking(t *testing.T) {
	configFile := createTempConfig(t, validConfigYAML)

	cfg, err := LoadWithProfile(configFile, "test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Inheritance == nil {
		t.Fatal("Expected inheritance info")
	}
	if cfg.Inheritance.Perturbation.Ref != "profile-specific" {
		t.Errorf("Expected perturbation ref profile-specific, got %s", cfg.Inheritance.Perturbation.Ref)
	}
	if cfg.Inheritance.Perturbation.Amplitude != "profile-specific" {
		t.Errorf("Expected amplitude profile-specific, got %s", cfg.Inheritance.Perturbation.Amplitude)
	}
	if cfg.Inheritance.Perturbation.Frequency != "inherited" {
		t.Errorf("Expected frequency inherited, got %s", cfg.Inheritance.Perturbation.Frequency)
	}
	if cfg.Inheritance.Relay.Mode != "profile-specific" {
		t.Errorf("Expected relay mode profile-specific, got %s", cfg.Inheritance.Relay.Mode)
	}
	if cfg.Inheritance.Relay.CapacityMs != "inherited" {
		t.Errorf("Expected relay capacity inherited, got %s", cfg.Inheritance.Relay.CapacityMs)
	}
	if cfg.Inheritance.Audio.Backend != "inherited" {
		t.Errorf("Expected backend inherited, got %s", cfg.Inheritance.Audio.Backend)
	}
}

func TestLoadWithProfile_ExplicitDefault(t *testing.T) {
	configFile := createTempConfig(t, validConfigYAML)

	cfg, err := LoadWithProfile(configFile, "default")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Perturbation.ID != "fixed" {
		t.Errorf("Expected fixed perturbation, got %s", cfg.Perturbation.ID)
	}
	if cfg.Relay.Mode != "fifo" {
		t.Errorf("Expected relay mode 'fifo', got %s", cfg.Relay.Mode)
	}

	values := cfg.Perturbation.Values
	if len(values) != 2 || values[0] != 0.1 || values[1] != -0.1 {
		t.Errorf("Unexpected sequence values %v", values)
	}
}

func TestLoadWithProfile_UnknownProfile(t *testing.T) {
	configFile := createTempConfig(t, validConfigYAML)

	_, err := LoadWithProfile(configFile, "studio")
	if err == nil || !strings.Contains(err.Error(), "'studio' not found") {
		t.Errorf("Expected profile not found error, got: %v", err)
	}
}

func TestLoadWithProfile_NoFile(t *testing.T) {
	_, err := LoadWithProfile("", "")
	if err == nil {
		t.Error("Expected error when no config file is given")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := Load(missing, "")
	if err != nil {
		t.Fatalf("Expected defaults, got error: %v", err)
	}

	if cfg.Profile != DefaultProfile {
		t.Errorf("Expected default profile, got %s", cfg.Profile)
	}
	if cfg.Audio.VirtualOutputDevice != DefaultVirtualOutputDevice {
		t.Errorf("Expected default virtual device, got %s", cfg.Audio.VirtualOutputDevice)
	}
	if cfg.Perturbation.Kind != "sine" || cfg.Perturbation.Frequency != 440 {
		t.Errorf("Expected built-in sine perturbation, got %+v", cfg.Perturbation)
	}
	if cfg.Session.PollInterval != time.Second {
		t.Errorf("Expected 1s poll interval, got %s", cfg.Session.PollInterval)
	}
	if !strings.HasSuffix(cfg.DataDirectory, filepath.Join(".local", "share", "top.linjhs.anti-rec")) {
		t.Errorf("Unexpected default data directory %s", cfg.DataDirectory)
	}

	if _, err := Load(missing, "studio"); err == nil {
		t.Error("Expected error for named profile without config file")
	}
}

func TestDefault_PerturbationGenerates(t *testing.T) {
	cfg := Default()
	spec := cfg.PerturbationSpec()

	if spec.Kind != "sine" || spec.Amplitude != 0.05 {
		t.Errorf("Unexpected default spec %+v", spec)
	}
}

func TestResolve_EmptyProfileInheritsEverything(t *testing.T) {
	rootConfig := &RootConfig{
		Definitions: &DefinitionsConfig{
			Perturbations: []PerturbationDefinition{
				{ID: "fixed", Name: "fixed", Kind: "sequence", Values: []float64{0.3}},
			},
		},
		Configs: map[string]*ConfigProfile{
			"default": {
				Perturbation: &PerturbationReference{Ref: "fixed"},
				Relay:        RelayConfig{CapacityMs: 100},
			},
			"bare": {},
		},
	}

	cfg, err := Resolve(rootConfig, "bare")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Perturbation.ID != "fixed" {
		t.Errorf("Expected inherited perturbation, got %s", cfg.Perturbation.ID)
	}
	if cfg.Relay.CapacityMs != 100 {
		t.Errorf("Expected inherited capacity 100, got %d", cfg.Relay.CapacityMs)
	}
	if cfg.Relay.Mode != "fifo" {
		t.Errorf("Expected built-in relay mode fifo, got %s", cfg.Relay.Mode)
	}
	if cfg.Inheritance.Perturbation.Ref != "inherited" {
		t.Errorf("Expected perturbation inherited, got %s", cfg.Inheritance.Perturbation.Ref)
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	configFile := createTempConfig(t, validConfigYAML)

	if err := UpdateActiveConfig(configFile, "default"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Profile != "default" {
		t.Errorf("Expected active profile 'default', got %s", cfg.Profile)
	}

	if err := UpdateActiveConfig(configFile, "studio"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestFindPerturbation(t *testing.T) {
	configFile := createTempConfig(t, validConfigYAML)

	def, err := FindPerturbation(configFile, "tone")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if def.Frequency != 440 {
		t.Errorf("Expected frequency 440, got %v", def.Frequency)
	}

	if _, err := FindPerturbation(configFile, "nope"); err == nil {
		t.Error("Expected error for unknown perturbation")
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Music", filepath.Join(homeDir, "Music")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%s) = %s, expected %s", test.input, result, test.expected)
		}
	}
}
