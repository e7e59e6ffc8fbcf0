package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/antirec/internal/perturb"
	"github.com/audiolibrelab/antirec/internal/recordings"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration and recording paths",
	Long:  `Display the resolved configuration with inheritance indicators and the file paths the next session will write. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ts := time.Now().UnixMilli()
		wavesDir := cfg.WavesDirectory()

		// Display file paths
		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("config_file: %s\n", cfgFile)
		fmt.Printf("waves_directory: %s\n", wavesDir)
		fmt.Printf("next_original: %s\n", filepath.Join(wavesDir, recordings.FileName(ts, recordings.TrackOriginal)))
		fmt.Printf("next_perturbed: %s\n", filepath.Join(wavesDir, recordings.FileName(ts, recordings.TrackPerturbed)))

		// Display resolved configuration with inheritance indicators
		fmt.Printf("\n=== RESOLVED CONFIGURATION (%s) ===\n", cfg.Profile)
		inh := cfg.Inheritance

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("backend: %s %s\n", cfg.Audio.Backend, getInheritanceIndicator(inh.Audio.Backend))
		fmt.Printf("virtual_output_device: %s %s\n", cfg.Audio.VirtualOutputDevice, getInheritanceIndicator(inh.Audio.VirtualOutputDevice))
		fmt.Printf("selection: %s %s\n", cfg.Audio.Selection, getInheritanceIndicator(inh.Audio.Selection))

		p := cfg.Perturbation
		fmt.Printf("\n[Perturbation]\n")
		fmt.Printf("ref: %s (%s) %s\n", p.ID, p.Kind, getInheritanceIndicator(inh.Perturbation.Ref))
		switch perturb.Kind(p.Kind) {
		case perturb.KindSine:
			fmt.Printf("frequency: %g Hz %s\n", p.Frequency, getInheritanceIndicator(inh.Perturbation.Frequency))
			fmt.Printf("amplitude: %g %s\n", p.Amplitude, getInheritanceIndicator(inh.Perturbation.Amplitude))
			fmt.Printf("rate: %d\n", p.Rate)
		case perturb.KindNoise:
			fmt.Printf("amplitude: %g %s\n", p.Amplitude, getInheritanceIndicator(inh.Perturbation.Amplitude))
			fmt.Printf("length: %d seed: %d\n", p.Length, p.Seed)
		default:
			fmt.Printf("values: %v\n", p.Values)
		}
		if values, err := perturb.Generate(cfg.PerturbationSpec()); err != nil {
			fmt.Printf("offsets: invalid (%v)\n", err)
		} else {
			fmt.Printf("offsets: %d\n", len(values))
		}

		fmt.Printf("\n[Relay]\n")
		fmt.Printf("mode: %s %s\n", cfg.Relay.Mode, getInheritanceIndicator(inh.Relay.Mode))
		fmt.Printf("capacity_ms: %d %s\n", cfg.Relay.CapacityMs, getInheritanceIndicator(inh.Relay.CapacityMs))

		fmt.Printf("\n[Session]\n")
		fmt.Printf("poll_interval: %s %s\n", cfg.Session.PollInterval, getInheritanceIndicator(inh.Session.PollInterval))
		fmt.Printf("recorder_queue: %d %s\n", cfg.Session.RecorderQueue, getInheritanceIndicator(inh.Session.RecorderQueue))

		fmt.Printf("\n[Server]\n")
		fmt.Printf("port: %s\n", cfg.Server.Port)
		fmt.Printf("mdns: %t\n", cfg.Server.MDNS)

		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}
