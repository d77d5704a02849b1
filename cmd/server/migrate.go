package main

import (
	"errors"

	"github.com/spf13/cobra"

	"lineage/internal/platform/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}
			if err := postgres.Migrate(cfg.Database.URL); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}
