package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AvinFlower/shadow-link/internal/provisioner"
	"github.com/AvinFlower/shadow-link/internal/provisioner/config"
	"github.com/AvinFlower/shadow-link/internal/shared/logger"
)

var rootCmd = &cobra.Command{
	Use:   "shadow-link",
	Short: "VPN configuration provisioning service",
	Long: `shadow-link provisions VPN client configurations across a fleet of
remote panel servers and keeps its local records reconciled against them.`,
	Version: provisioner.Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the service configuration, returning it with
// a logger configured from it.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.New(logger.LoggerConfig{
		Level:     logger.LogLevel(cfg.Log.Level),
		Format:    logger.OutputFormat(cfg.Log.Format),
		Component: "shadow-link",
		Version:   provisioner.Version,
	})
	return cfg, log, nil
}
