package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/antirec/internal/config"
	"github.com/audiolibrelab/antirec/internal/engine"
	"github.com/audiolibrelab/antirec/internal/perturb"
	"github.com/audiolibrelab/antirec/internal/service"
	"github.com/audiolibrelab/antirec/internal/ui"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a perturbation session until stopped",
	Long: `Open the default microphone and the virtual output device and relay the
perturbed signal until Enter is pressed or the process is interrupted.

The perturbation comes from --values, from --perturbation (an id in the
definitions section) or from the active profile, in that order.`,
	Example: `  antirec run
  antirec run --values=0.1,-0.1
  antirec run --perturbation fixed --tui`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := sessionValues(cmd)
		if err != nil {
			return err
		}
		useTUI, _ := cmd.Flags().GetBool("tui")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := service.New(cfg, cfgFile)
		if err != nil {
			return err
		}
		defer svc.Close()

		info, err := svc.Start(ctx, values)
		if err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
		printSessionStart(info)

		ended := make(chan struct{})
		go func() {
			svc.Wait(context.Background())
			close(ended)
		}()

		if useTUI {
			status := func() *engine.SessionInfo { return svc.GetStatus().Session }
			if err := ui.Run(ctx, status, svc.Events()); err != nil {
				return err
			}
		} else {
			fmt.Println("Streaming - Press Enter to stop...")
			waitForStop(ctx, ended)
		}

		return finishSession(svc)
	},
}

func init() {
	runCmd.Flags().Float32Slice("values", nil, "explicit perturbation offsets, comma separated")
	runCmd.Flags().String("perturbation", "", "id of a perturbation from the definitions section")
	runCmd.Flags().Bool("tui", false, "show the live terminal monitor")
}

// sessionValues resolves the perturbation offsets of the session
func sessionValues(cmd *cobra.Command) ([]float32, error) {
	if cmd.Flags().Changed("values") {
		values, _ := cmd.Flags().GetFloat32Slice("values")
		if err := perturb.Validate(values); err != nil {
			return nil, err
		}
		return values, nil
	}

	spec := cfg.PerturbationSpec()
	if id, _ := cmd.Flags().GetString("perturbation"); id != "" {
		def, err := config.FindPerturbation(cfgFile, id)
		if err != nil {
			return nil, err
		}
		spec = def.Spec()
	}

	values, err := perturb.Generate(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid perturbation: %w", err)
	}
	return values, nil
}

// waitForStop returns on Enter, on interrupt or when the session ends itself
func waitForStop(ctx context.Context, ended <-chan struct{}) {
	enter := make(chan struct{})
	go func() {
		bufio.NewScanner(os.Stdin).Scan()
		close(enter)
	}()

	select {
	case <-enter:
	case <-ctx.Done():
		fmt.Println()
	case <-ended:
	}
}

// finishSession stops the session if it still runs and reports the outcome
func finishSession(svc service.Service) error {
	svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), service.StopTimeout)
	defer cancel()
	if err := svc.Wait(ctx); err != nil {
		return fmt.Errorf("session did not stop: %w", err)
	}

	status := svc.GetStatus()
	if status.Session == nil {
		return nil
	}
	info := status.Session

	fmt.Printf("Session %s finished (%s)\n", info.ID, info.State)
	fmt.Printf("  original:  %s\n", info.OriginalFile)
	fmt.Printf("  perturbed: %s\n", info.PerturbedFile)
	if info.Relay != nil {
		fmt.Printf("  relay: %d underruns, %d overflows\n", info.Relay.Underruns, info.Relay.Overflows)
	}
	if info.Recorder != nil {
		if dropped := info.Recorder.Original.Dropped + info.Recorder.Perturbed.Dropped; dropped > 0 {
			fmt.Printf("  recorder dropped %d samples\n", dropped)
		}
	}

	if info.Error != "" {
		return fmt.Errorf("session failed: %s", info.Error)
	}
	return nil
}

func printSessionStart(info *engine.SessionInfo) {
	fmt.Printf("Session %s started\n", info.ID)
	if n := info.Negotiation; n != nil {
		fmt.Printf("  input:  %s (%s)\n", n.Input.Device.Name, n.Input.Config)
		virtual := ""
		if !n.Virtual {
			virtual = " - virtual device not found, using default output"
		}
		fmt.Printf("  output: %s (%s)%s\n", n.Output.Device.Name, n.Output.Config, virtual)
	}
	fmt.Printf("  perturbation: %d offsets\n", info.SequenceLength)
}
