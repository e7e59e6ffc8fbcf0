package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/antirec/internal/audio"
	"github.com/audiolibrelab/antirec/internal/service"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio devices",
	Long: `List the capture and playback devices of the configured audio backend.
The default devices and the virtual output device are marked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg, cfgFile)
		if err != nil {
			return err
		}
		defer svc.Close()

		list, err := svc.ListDevices()
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}

		printDevices(list)
		return nil
	},
}

func printDevices(list *service.DeviceList) {
	fmt.Printf("🎵 Audio Devices (%s, %s backend)\n", runtime.GOOS, list.Backend)
	fmt.Printf("═══════════════════════════════════════\n\n")

	fmt.Printf("🎤 INPUTS (%d found):\n", len(list.Inputs))
	printDeviceList(list.Inputs, "")

	fmt.Printf("\n🔊 OUTPUTS (%d found):\n", len(list.Outputs))
	printDeviceList(list.Outputs, list.VirtualOutput)

	fmt.Println()
	if list.VirtualPresent {
		fmt.Printf("✅ Virtual output device found: %s\n", list.VirtualOutput)
	} else {
		fmt.Printf("⚠️  Virtual output device not found: %s\n", list.VirtualOutput)
		fmt.Printf("   Sessions will play on the default output instead.\n")
		fmt.Printf("   Configure audio.virtual_output_device with one of the outputs above.\n")
	}

	backends := audio.GetAvailableBackends()
	fmt.Printf("\n💡 Available backends: %v\n", backends)
}

func printDeviceList(devices []audio.DeviceInfo, virtual string) {
	for i, d := range devices {
		marks := ""
		if d.IsDefault {
			marks += " [default]"
		}
		if virtual != "" && d.Name == virtual {
			marks += " [virtual]"
		}
		fmt.Printf("  %d. %s%s\n", i+1, d.Name, marks)
		for _, c := range d.Configs {
			rate := fmt.Sprintf("%d Hz", c.MinRate)
			if c.MaxRate != c.MinRate {
				rate = fmt.Sprintf("%d-%d Hz", c.MinRate, c.MaxRate)
			}
			fmt.Printf("       %s %dch %s\n", c.Format, c.Channels, rate)
		}
	}
}
