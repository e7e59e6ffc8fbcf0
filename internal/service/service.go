package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/antirec/internal/audio"
	"github.com/audiolibrelab/antirec/internal/config"
	"github.com/audiolibrelab/antirec/internal/engine"
	"github.com/audiolibrelab/antirec/internal/events"
	"github.com/audiolibrelab/antirec/internal/perturb"
	"github.com/audiolibrelab/antirec/internal/recordings"
)

// StopTimeout bounds how long Close waits for a session to tear down
const StopTimeout = 5 * time.Second

// Service represents the core anti-recording service interface
type Service interface {
	// Session operations
	Start(ctx context.Context, values []float32) (*engine.SessionInfo, error)
	StartConfigured(ctx context.Context) (*engine.SessionInfo, error)
	Stop() (*engine.SessionInfo, error)
	Wait(ctx context.Context) error
	GetStatus() Status

	// Live visualization
	Events() *events.Hub

	// Recording operations
	ListRecordings() ([]recordings.Recording, error)
	RecordingPath(name string) (string, error)
	Waveform(name string, buckets int) (*recordings.Waveform, error)
	DeleteRecording(ts int64) error

	// Device operations
	ListDevices() (*DeviceList, error)

	// Configuration operations
	LoadProfile(profile string) error
	GetConfig() *config.Config

	GetLastError() string
	Close() error
}

// Status is the state reported to front-ends
type Status struct {
	State     engine.State        `json:"state"`
	Session   *engine.SessionInfo `json:"session,omitempty"`
	LastError string              `json:"last_error,omitempty"`
	Profile   string              `json:"profile"`
	Backend   string              `json:"backend"`
}

// DeviceList is the enumeration shown by `sources` and /api/devices
type DeviceList struct {
	Backend        string             `json:"backend"`
	Inputs         []audio.DeviceInfo `json:"inputs"`
	Outputs        []audio.DeviceInfo `json:"outputs"`
	VirtualOutput  string             `json:"virtual_output"`
	VirtualPresent bool               `json:"virtual_present"`
}

// AntiRecService is the main service implementation
type AntiRecService struct {
	mu         sync.RWMutex
	cfg        *config.Config
	configFile string
	host       audio.Host
	controller *engine.Controller
	catalogue  *recordings.Catalogue
	hub        *events.Hub

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service on the audio backend selected by cfg
func New(cfg *config.Config, configFile string) (Service, error) {
	host, err := audio.NewHost(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio backend: %w", err)
	}
	svc, err := NewWithHost(cfg, configFile, host)
	if err != nil {
		host.Close()
		return nil, err
	}
	return svc, nil
}

// NewWithHost creates a service on an already opened host
func NewWithHost(cfg *config.Config, configFile string, host audio.Host) (*AntiRecService, error) {
	opts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	hub := events.NewHub()
	return &AntiRecService{
		cfg:        cfg,
		configFile: configFile,
		host:       host,
		controller: engine.NewController(host, opts, hub),
		catalogue:  recordings.New(cfg.WavesDirectory()),
		hub:        hub,
	}, nil
}

// Start begins a session perturbing with the given offsets
func (s *AntiRecService) Start(ctx context.Context, values []float32) (*engine.SessionInfo, error) {
	slog.Debug("Service.Start called", "sequence_length", len(values))
	s.clearLastError()

	s.mu.RLock()
	controller := s.controller
	s.mu.RUnlock()

	session, err := controller.Start(ctx, values)
	if err != nil {
		if !errors.Is(err, engine.ErrSessionActive) {
			s.setLastError(fmt.Sprintf("Failed to start session: %v", err))
		}
		return nil, err
	}

	info := session.Info()
	return &info, nil
}

// StartConfigured begins a session with the perturbation of the active profile
func (s *AntiRecService) StartConfigured(ctx context.Context) (*engine.SessionInfo, error) {
	s.mu.RLock()
	spec := s.cfg.PerturbationSpec()
	s.mu.RUnlock()

	values, err := perturb.Generate(spec)
	if err != nil {
		s.setLastError(fmt.Sprintf("Invalid perturbation: %v", err))
		return nil, err
	}
	return s.Start(ctx, values)
}

// Stop signals the active session to stop; teardown completes in background
func (s *AntiRecService) Stop() (*engine.SessionInfo, error) {
	s.mu.RLock()
	controller := s.controller
	s.mu.RUnlock()

	session, err := controller.Stop()
	if err != nil {
		return nil, err
	}

	go func() {
		<-session.Done()
		if err := session.Err(); err != nil {
			s.setLastError(fmt.Sprintf("Session ended with error: %v", err))
		}
	}()

	info := session.Info()
	return &info, nil
}

// Wait blocks until the current session, if any, has torn down
func (s *AntiRecService) Wait(ctx context.Context) error {
	s.mu.RLock()
	session := s.controller.Current()
	s.mu.RUnlock()

	if session == nil {
		return nil
	}
	return session.Wait(ctx)
}

// GetStatus returns the controller state and the latest session
func (s *AntiRecService) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		State:     s.controller.State(),
		LastError: s.GetLastError(),
		Profile:   s.cfg.Profile,
		Backend:   s.host.Name(),
	}
	if session := s.controller.Current(); session != nil {
		info := session.Info()
		status.Session = &info
		if info.Error != "" && status.LastError == "" {
			status.LastError = info.Error
		}
	}
	return status
}

// Events returns the hub carrying capture batches
func (s *AntiRecService) Events() *events.Hub {
	return s.hub
}

// ListRecordings returns the recorded sessions, newest first
func (s *AntiRecService) ListRecordings() ([]recordings.Recording, error) {
	return s.recordingCatalogue().List()
}

// RecordingPath resolves a recording file name for streaming
func (s *AntiRecService) RecordingPath(name string) (string, error) {
	return s.recordingCatalogue().Path(name)
}

// Waveform returns the peak envelope of a recording file
func (s *AntiRecService) Waveform(name string, buckets int) (*recordings.Waveform, error) {
	path, err := s.RecordingPath(name)
	if err != nil {
		return nil, err
	}
	return recordings.Peaks(path, buckets)
}

// DeleteRecording removes a recorded session. The running session's files
// are protected.
func (s *AntiRecService) DeleteRecording(ts int64) error {
	s.mu.RLock()
	current := s.controller.Current()
	s.mu.RUnlock()

	if current != nil && current.Timestamp == ts && current.State().Active() {
		return fmt.Errorf("%w: recording %d is being written", engine.ErrSessionActive, ts)
	}
	return s.recordingCatalogue().Delete(ts)
}

// ListDevices enumerates the input and output devices of the host
func (s *AntiRecService) ListDevices() (*DeviceList, error) {
	s.mu.RLock()
	host := s.host
	virtual := s.cfg.Audio.VirtualOutputDevice
	s.mu.RUnlock()

	inputs, err := host.Devices(audio.Capture)
	if err != nil {
		return nil, err
	}
	outputs, err := host.Devices(audio.Playback)
	if err != nil {
		return nil, err
	}

	list := &DeviceList{
		Backend:       host.Name(),
		Inputs:        inputs,
		Outputs:       outputs,
		VirtualOutput: virtual,
	}
	for _, d := range outputs {
		if d.Name == virtual {
			list.VirtualPresent = true
			break
		}
	}
	return list, nil
}

// LoadProfile switches to another configuration profile. The audio backend
// is reopened when the profile selects a different one.
func (s *AntiRecService) LoadProfile(profile string) error {
	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}
	opts, err := engine.OptionsFromConfig(newCfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.controller.State().Active() {
		return fmt.Errorf("cannot switch profile: %w", engine.ErrSessionActive)
	}

	host := s.host
	if newCfg.Audio.Backend != s.cfg.Audio.Backend {
		newHost, err := audio.NewHost(newCfg)
		if err != nil {
			return fmt.Errorf("failed to open audio backend: %w", err)
		}
		s.host.Close()
		host = newHost
	}

	s.cfg = newCfg
	s.host = host
	s.controller = engine.NewController(host, opts, s.hub)
	s.catalogue = recordings.New(newCfg.WavesDirectory())

	slog.Info("Profile loaded", "profile", newCfg.Profile, "backend", host.Name())
	return nil
}

// GetConfig returns the current configuration
func (s *AntiRecService) GetConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Close stops any session, waits for it and releases the audio backend
func (s *AntiRecService) Close() error {
	s.mu.RLock()
	controller := s.controller
	host := s.host
	s.mu.RUnlock()

	if session, err := controller.Stop(); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), StopTimeout)
		defer cancel()
		if err := session.Wait(ctx); err != nil {
			slog.Warn("Session did not stop in time", "session", session.ID, "error", err)
		}
	}

	s.hub.Close()
	return host.Close()
}

func (s *AntiRecService) recordingCatalogue() *recordings.Catalogue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalogue
}

// GetLastError returns the last error message (thread-safe)
func (s *AntiRecService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *AntiRecService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	// Log all errors for debugging and monitoring
	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *AntiRecService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
