package cmd

import (
	"fmt"
	"strconv"

	"github.com/audiolibrelab/antirec/internal/play"
	"github.com/audiolibrelab/antirec/internal/recordings"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [timestamp]",
	Short: "Play a recorded track",
	Long: `Play one track of a recorded session with an external player (vlc, mpv,
ffplay or aplay, in that order). Without a timestamp the newest recording is
played.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ts int64
		if len(args) == 1 {
			var err error
			ts, err = strconv.ParseInt(args[0], 10, 64)
			if err != nil || ts <= 0 {
				return fmt.Errorf("invalid recording timestamp: %q", args[0])
			}
		}

		trackName, _ := cmd.Flags().GetString("track")
		track, err := recordings.ParseTrack(trackName)
		if err != nil {
			return err
		}

		player := play.New(recordings.New(cfg.WavesDirectory()))
		path, err := player.Resolve(ts, track)
		if err != nil {
			return err
		}
		fmt.Printf("Playing: %s\n", path)

		if err := player.Play(ts, track); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}

func init() {
	playCmd.Flags().StringP("track", "t", string(recordings.TrackPerturbed), "track to play: ori or new")
}
