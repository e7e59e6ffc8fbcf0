package cmd

import (
	"fmt"
	"time"

	"github.com/audiolibrelab/antirec/internal/discovery"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find antirec servers on the local network",
	Long:  `Query mDNS for antirec web servers started with 'antirec serve --mdns'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")

		servers, err := discovery.Browse(timeout)
		if err != nil {
			return err
		}
		if len(servers) == 0 {
			fmt.Println("No servers found")
			return nil
		}

		for _, s := range servers {
			fmt.Printf("%s\t%s\n", s.Name, s.URL())
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().Duration("timeout", 3*time.Second, "how long to wait for answers")
}
