package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AvinFlower/shadow-link/internal/provisioner"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the provisioning service",
	Long: `Start the provisioning service: import the server fleet from the
environment, start the reconciliation and cache refresh schedulers, and serve
the HTTP API until interrupted.

Examples:
  shadow-link serve
  SHADOWLINK_API_LISTEN_ADDR=:9090 shadow-link serve`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log, err := loadConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		log.Info("starting shadow-link",
			"version", provisioner.Version,
			"listen_addr", cfg.API.ListenAddr,
		)

		service, err := provisioner.NewService(cfg, log)
		if err != nil {
			log.Error("failed to create service", "error", err)
			os.Exit(1)
		}

		ctx := context.Background()
		if err := service.Start(ctx); err != nil {
			log.Error("failed to start service", "error", err)

			stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if stopErr := service.Stop(stopCtx); stopErr != nil {
				log.Error("cleanup failed", "error", stopErr)
			}
			os.Exit(1)
		}

		service.WaitForShutdown()
		log.Info("shadow-link stopped")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
