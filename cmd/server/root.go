package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"lineage/internal/platform/config"
	"lineage/internal/platform/logger"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lineage",
		Short:         "Genealogy suggestion review and duplicate resolution service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (LINEAGE_* env vars override it)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newScanCmd(),
		newAuditCmd(),
	)
	return root
}

// loadConfig reads configuration and builds the process logger from it.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	return cfg, log, nil
}
