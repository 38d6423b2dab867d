package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fleetd",
	Short: "Fleet telemetry service: ingestion, alerting and live dashboard feed",
	Long: `fleetd accepts vehicle telemetry over HTTP, stores it, tracks vehicle
presence, evaluates alert rules and streams live updates to dashboards over
WebSocket.

Configuration is read from the environment, optionally seeded from a .env
file in the working directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedKeysCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
