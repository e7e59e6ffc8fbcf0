package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/antirec/internal/server"
	"github.com/audiolibrelab/antirec/internal/service"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the antirec web server to start and stop sessions, watch live levels
and listen to recordings from a browser.

The server will display the local network URL for easy access from other devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") || port == "" {
			port, _ = cmd.Flags().GetString("port")
		}
		enableMDNS := cfg.Server.MDNS
		if cmd.Flags().Changed("mdns") {
			enableMDNS, _ = cmd.Flags().GetBool("mdns")
		}

		svc, err := service.New(cfg, cfgFile)
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close()

		srv := server.New(svc, server.Options{
			Port:       port,
			EnableMDNS: enableMDNS,
		})

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			<-sigChan
			srv.Stop()
		}()

		slog.Info("antirec web server starting", "port", port, "config", cfgFile, "profile", cfg.Profile, "mdns", enableMDNS)

		// Start server (this blocks)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
	serveCmd.Flags().Bool("mdns", false, "advertise the server over mDNS")
}
