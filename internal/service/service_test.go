package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/antirec/internal/audio"
	"github.com/audiolibrelab/antirec/internal/audio/audiotest"
	"github.com/audiolibrelab/antirec/internal/config"
	"github.com/audiolibrelab/antirec/internal/engine"
	"github.com/audiolibrelab/antirec/internal/recordings"
	"github.com/audiolibrelab/antirec/internal/sample"
)

var monoF32 = audio.StreamConfig{Format: sample.FormatF32, Channels: 1, SampleRate: 48000}

const profilesYAML = `
active_config: default

audio:
  backend: auto

definitions:
  perturbations:
    - id: fixed
      name: fixed pair
      kind: sequence
      values: [0.1, -0.1]

configs:
  default:
    perturbation:
      ref: fixed
  quiet:
    perturbation:
      ref: fixed
    relay:
      mode: lifo
`

func newTestService(t *testing.T) (*AntiRecService, *audiotest.Host) {
	t.Helper()

	dir := t.TempDir()
	configFile := filepath.Join(dir, "antirec.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(profilesYAML), 0644))

	cfg, err := config.LoadWithProfile(configFile, "")
	require.NoError(t, err)
	cfg.DataDirectory = dir
	cfg.Session.PollInterval = 10 * time.Millisecond

	host := audiotest.NewDuplexHost(monoF32)
	svc, err := NewWithHost(cfg, configFile, host)
	require.NoError(t, err)
	return svc, host
}

func stopAndWait(t *testing.T, svc *AntiRecService) {
	t.Helper()
	_, err := svc.Stop()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(ctx))
}

func TestService_StartStopLifecycle(t *testing.T) {
	svc, host := newTestService(t)
	defer svc.Close()

	assert.Equal(t, engine.StateIdle, svc.GetStatus().State)

	info, err := svc.StartConfigured(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.StateStreaming, info.State)
	assert.Equal(t, 2, info.SequenceLength)

	status := svc.GetStatus()
	assert.Equal(t, engine.StateStreaming, status.State)
	assert.Equal(t, "fake", status.Backend)
	require.NotNil(t, status.Session)

	_, err = svc.Start(context.Background(), []float32{0.5})
	assert.ErrorIs(t, err, engine.ErrSessionActive)
	assert.Empty(t, svc.GetLastError())

	host.Stream(audio.Capture).Capture([]float32{0.1, 0.2, 0.3})
	stopAndWait(t, svc)

	assert.Equal(t, engine.StateIdle, svc.GetStatus().State)

	list, err := svc.ListRecordings()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Complete)
	assert.Equal(t, 1, list[0].Original.Frames)
}

func TestService_StopWithoutSession(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()

	_, err := svc.Stop()
	assert.ErrorIs(t, err, engine.ErrNoSession)
	assert.NoError(t, svc.Wait(context.Background()))
}

func TestService_StartFailureSetsLastError(t *testing.T) {
	svc, host := newTestService(t)
	defer svc.Close()

	host.OpenErr[audio.Playback] = assert.AnError
	_, err := svc.Start(context.Background(), []float32{0.1})
	require.Error(t, err)
	assert.Contains(t, svc.GetLastError(), "Failed to start session")

	delete(host.OpenErr, audio.Playback)
	_, err = svc.Start(context.Background(), []float32{0.1})
	require.NoError(t, err)
	assert.Empty(t, svc.GetLastError())
	stopAndWait(t, svc)
}

func TestService_EmptySequenceRejected(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()

	_, err := svc.Start(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, engine.StateIdle, svc.GetStatus().State)
}

func TestService_DeleteProtectsActiveRecording(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()

	info, err := svc.Start(context.Background(), []float32{0.1})
	require.NoError(t, err)

	err = svc.DeleteRecording(info.Timestamp)
	assert.ErrorIs(t, err, engine.ErrSessionActive)

	stopAndWait(t, svc)
	require.NoError(t, svc.DeleteRecording(info.Timestamp))
	assert.ErrorIs(t, svc.DeleteRecording(info.Timestamp), recordings.ErrNotFound)
}

func TestService_WaveformAndPath(t *testing.T) {
	svc, host := newTestService(t)
	defer svc.Close()

	info, err := svc.Start(context.Background(), []float32{0})
	require.NoError(t, err)
	host.Stream(audio.Capture).Capture([]float32{0, 0, 0.5, 0, 0, -1})
	stopAndWait(t, svc)

	name := recordings.FileName(info.Timestamp, recordings.TrackOriginal)
	path, err := svc.RecordingPath(name)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.GetConfig().WavesDirectory(), name), path)

	wf, err := svc.Waveform(name, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, wf.Frames)
	assert.InDeltaSlice(t, []float32{0.5, 1}, wf.Peaks, 1e-3)

	_, err = svc.Waveform("../etc/passwd", 10)
	assert.Error(t, err)
}

func TestService_ListDevices(t *testing.T) {
	svc, host := newTestService(t)
	defer svc.Close()

	host.AddDevice(audio.Playback, config.DefaultVirtualOutputDevice, false, monoF32)

	list, err := svc.ListDevices()
	require.NoError(t, err)
	assert.Equal(t, "fake", list.Backend)
	assert.Len(t, list.Inputs, 1)
	assert.Len(t, list.Outputs, 2)
	assert.True(t, list.VirtualPresent)

	host.DevicesErr = assert.AnError
	_, err = svc.ListDevices()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestService_LoadProfile(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()

	require.NoError(t, svc.LoadProfile("quiet"))
	assert.Equal(t, "quiet", svc.GetConfig().Profile)
	assert.Equal(t, "lifo", svc.GetConfig().Relay.Mode)

	assert.Error(t, svc.LoadProfile("missing"))
	assert.Equal(t, "quiet", svc.GetConfig().Profile)
}

func TestService_LoadProfileRefusedWhileStreaming(t *testing.T) {
	svc, _ := newTestService(t)
	defer svc.Close()

	_, err := svc.Start(context.Background(), []float32{0.1})
	require.NoError(t, err)

	err = svc.LoadProfile("quiet")
	assert.ErrorIs(t, err, engine.ErrSessionActive)
	stopAndWait(t, svc)
}

func TestService_CloseStopsSession(t *testing.T) {
	svc, host := newTestService(t)

	_, err := svc.Start(context.Background(), []float32{0.1})
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	assert.True(t, host.Closed())
	assert.Equal(t, engine.StateIdle, svc.GetStatus().State)
	for _, s := range host.Streams() {
		assert.True(t, s.Closed())
	}
}
