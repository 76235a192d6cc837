package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AvinFlower/shadow-link/internal/provisioner/db"
	"github.com/AvinFlower/shadow-link/internal/provisioner/fleet"
)

var importServersCmd = &cobra.Command{
	Use:   "import-servers",
	Short: "Import the server fleet from environment variables",
	Long: `Scan the numbered HOST1, HOST2, ... environment variable groups and
record every server that is not already known. Servers with an address that
already exists in the database are skipped; malformed entries are reported and
ignored.

Examples:
  HOST1=vpn1.example.com PORT1=443 PORT_X_UI1=2053 COUNTRY1=NL \
  USERNAME1=admin PASSWORD1=secret MAX_USERS1=50 \
  UI_PANEL_LINK1=https://vpn1.example.com:2053/panel \
  shadow-link import-servers`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log, err := loadConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		store, err := db.NewStore(&db.Config{
			Path:            cfg.DB.Path,
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		})
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer store.Close()

		summary, err := fleet.NewImporter(store, log).ImportFromEnv(context.Background())
		if err != nil {
			log.Error("fleet import failed", "error", err)
			os.Exit(1)
		}

		fmt.Printf("imported %d server(s), skipped %d known, %d invalid\n",
			summary.Imported, summary.Skipped, summary.Invalid)
	},
}

func init() {
	rootCmd.AddCommand(importServersCmd)
}
