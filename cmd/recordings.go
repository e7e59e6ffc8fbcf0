package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/audiolibrelab/antirec/internal/recordings"

	"github.com/spf13/cobra"
)

var recordingsCmd = &cobra.Command{
	Use:     "recordings",
	Aliases: []string{"ls"},
	Short:   "List recorded sessions",
	Long:    `List the sessions recorded in the waves directory, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogue := recordings.New(cfg.WavesDirectory())
		list, err := catalogue.List()
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}

		if len(list) == 0 {
			fmt.Printf("No recordings in %s\n", catalogue.Directory())
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tSTARTED\tORIGINAL\tPERTURBED")
		for _, rec := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", rec.Timestamp, rec.StartTimeText,
				describeTrack(rec.Original), describeTrack(rec.Perturbed))
		}
		w.Flush()

		fmt.Printf("\n%d recording(s) in %s\n", len(list), catalogue.Directory())
		return nil
	},
}

var recordingsRmCmd = &cobra.Command{
	Use:   "rm <timestamp>...",
	Short: "Delete recorded sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogue := recordings.New(cfg.WavesDirectory())
		for _, arg := range args {
			ts, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid recording timestamp: %q", arg)
			}
			if err := catalogue.Delete(ts); err != nil {
				return err
			}
			fmt.Printf("Deleted recording %d\n", ts)
		}
		return nil
	},
}

func describeTrack(f *recordings.FileInfo) string {
	switch {
	case f == nil:
		return "-"
	case f.Error != "":
		return "unreadable (" + f.SizeHuman + ")"
	}
	return fmt.Sprintf("%.1fs %dHz %dch (%s)", f.DurationSecs, f.SampleRate, f.Channels, f.SizeHuman)
}

func init() {
	recordingsCmd.Flags().Bool("json", false, "print the list as JSON")
	recordingsCmd.AddCommand(recordingsRmCmd)
}
