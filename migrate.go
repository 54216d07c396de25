package main

import (
	"fmt"
	"time"

	"taskboard/config"
	"taskboard/logging"
	"taskboard/utils"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printOnly {
				fmt.Fprint(cmd.OutOrStdout(), utils.Schema())
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logging.Init(logOptions(cfg)); err != nil {
				return err
			}

			start := time.Now()
			if err := utils.Migrate(cmd.Context(), cfg.DatabaseURL); err != nil {
				return err
			}
			logging.Logger.Infof("Event ID: MIGRATION_APPLIED, Description: schema applied in %s", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}
