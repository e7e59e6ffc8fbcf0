package play

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/antirec/internal/recordings"
)

// Players lists supported external players in order of preference
var Players = []string{"vlc", "mpv", "ffplay", "aplay"}

type Player struct {
	catalogue *recordings.Catalogue

	lookPath func(file string) (string, error)
	run      func(name string, args ...string) error
}

func New(catalogue *recordings.Catalogue) *Player {
	return &Player{
		catalogue: catalogue,
		lookPath:  exec.LookPath,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Resolve finds the file of one track of a recording. A timestamp of 0
// selects the newest recording.
func (p *Player) Resolve(ts int64, track recordings.Track) (string, error) {
	var (
		rec *recordings.Recording
		err error
	)
	if ts == 0 {
		rec, err = p.catalogue.Latest()
	} else {
		rec, err = p.catalogue.Get(ts)
	}
	if err != nil {
		return "", err
	}

	file := rec.Track(track)
	if file == nil {
		return "", fmt.Errorf("%w: recording %d has no %s track", recordings.ErrNotFound, rec.Timestamp, track)
	}
	return file.Path, nil
}

// Play runs an external player on one track and waits for it to exit
func (p *Player) Play(ts int64, track recordings.Track) error {
	audioFile, err := p.Resolve(ts, track)
	if err != nil {
		return err
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	slog.Info("Playing recording", "file", audioFile, "player", player)

	if err := p.run(player, playerArgs(player, audioFile)...); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}

	slog.Info("Playback completed", "file", audioFile)
	return nil
}

func playerArgs(player, audioFile string) []string {
	switch player {
	case "vlc":
		return []string{"--play-and-exit", audioFile}
	case "mpv":
		return []string{"--no-video", audioFile}
	case "ffplay":
		return []string{"-nodisp", "-autoexit", audioFile}
	default:
		// aplay reads the 16-bit WAV tracks directly
		return []string{audioFile}
	}
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range Players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(Players, ", "))
}
