package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleet-monitor/realtime/internal/config"
	"fleet-monitor/realtime/internal/logging"
	"fleet-monitor/realtime/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	Long: `migrate creates the vehicles, telemetry and alerts tables with their
indexes. The telemetry table becomes a hypertable when the timescaledb
extension is available. Running it again is a no-op.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		logger := logging.New(cfg.LogLevel, cfg.LogFormat)

		db, err := store.NewPostgresStore(cmd.Context(), cfg.DatabaseURL())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context(), logger); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "database schema is up to date")
		return nil
	},
}
