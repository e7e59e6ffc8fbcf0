package play

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/antirec/internal/recordings"
)

type runCall struct {
	name string
	args []string
}

func newTestPlayer(t *testing.T, available ...string) (*Player, string, *[]runCall) {
	t.Helper()

	dir := t.TempDir()
	// the catalogue reports files whose headers it cannot parse
	for _, name := range []string{"1000_ori.wav", "1000_new.wav", "2000_ori.wav"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("RIFF"), 0644))
	}

	calls := &[]runCall{}
	p := New(recordings.New(dir))
	p.lookPath = func(file string) (string, error) {
		for _, a := range available {
			if a == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", errors.New("not found")
	}
	p.run = func(name string, args ...string) error {
		*calls = append(*calls, runCall{name, args})
		return nil
	}
	return p, dir, calls
}

func TestPlay_PrefersVLC(t *testing.T) {
	p, dir, calls := newTestPlayer(t, "aplay", "mpv", "vlc")

	require.NoError(t, p.Play(1000, recordings.TrackPerturbed))
	require.Len(t, *calls, 1)
	assert.Equal(t, "vlc", (*calls)[0].name)
	assert.Equal(t, []string{"--play-and-exit", filepath.Join(dir, "1000_new.wav")}, (*calls)[0].args)
}

func TestPlay_LatestRecording(t *testing.T) {
	p, dir, calls := newTestPlayer(t, "aplay")

	require.NoError(t, p.Play(0, recordings.TrackOriginal))
	require.Len(t, *calls, 1)
	assert.Equal(t, "aplay", (*calls)[0].name)
	assert.Equal(t, []string{filepath.Join(dir, "2000_ori.wav")}, (*calls)[0].args)
}

func TestPlay_MissingTrack(t *testing.T) {
	p, _, calls := newTestPlayer(t, "mpv")

	err := p.Play(2000, recordings.TrackPerturbed)
	assert.ErrorIs(t, err, recordings.ErrNotFound)
	assert.Empty(t, *calls)
}

func TestPlay_NoPlayer(t *testing.T) {
	p, _, _ := newTestPlayer(t)

	err := p.Play(1000, recordings.TrackOriginal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vlc, mpv, ffplay, aplay")
}

func TestPlay_PlayerFails(t *testing.T) {
	p, _, _ := newTestPlayer(t, "ffplay")
	p.run = func(string, ...string) error { return errors.New("exit status 1") }

	err := p.Play(1000, recordings.TrackOriginal)
	assert.EqualError(t, err, "playback failed with ffplay: exit status 1")
}

func TestPlayerArgs(t *testing.T) {
	assert.Equal(t, []string{"--no-video", "a.wav"}, playerArgs("mpv", "a.wav"))
	assert.Equal(t, []string{"-nodisp", "-autoexit", "a.wav"}, playerArgs("ffplay", "a.wav"))
}
