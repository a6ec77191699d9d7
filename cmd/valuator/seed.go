package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/valuation/internal/config"
	"github.com/matthewbaird/valuation/internal/logging"
	"github.com/matthewbaird/valuation/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo valuations into the configured database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath, envFile)
		if err != nil {
			return err
		}
		if cfg.Database.DSN == "" {
			return fmt.Errorf("seed needs a database; set database.dsn")
		}
		log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		defer log.Sync()

		st, closeStores, err := openStores(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer closeStores()

		n, err := seed.Valuations(cmd.Context(), st.valuations, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d valuations\n", n)
		return nil
	},
}
