package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"fleet-monitor/realtime/internal/config"
	"fleet-monitor/realtime/internal/logging"
	"fleet-monitor/realtime/internal/store"
)

var seedKeys map[string]string

var seedKeysCmd = &cobra.Command{
	Use:   "seed-keys",
	Short: "Store vehicle API keys in Redis",
	Example: `  fleetd seed-keys --key ev_fleet_key=EV-FLEET-1 --key test_key=test_fleet`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if len(seedKeys) == 0 {
			return errors.New("no keys given, use --key api_key=owner")
		}

		cfg := config.Load()
		logger := logging.New(cfg.LogLevel, cfg.LogFormat)

		rs, err := store.NewRedisStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer rs.Close()

		if err := rs.SeedAPIKeys(cmd.Context(), seedKeys); err != nil {
			return err
		}

		keys := make([]string, 0, len(seedKeys))
		for k := range seedKeys {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-40s -> %s\n", k, seedKeys[k])
		}
		return nil
	},
}

func init() {
	seedKeysCmd.Flags().StringToStringVar(&seedKeys, "key", nil, "api_key=owner pair, repeatable")
}
