package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lineage/internal/platform/postgres"
	"lineage/pkg/platform/audit"
	auditpg "lineage/pkg/platform/audit/store/postgres"
)

func newAuditCmd() *cobra.Command {
	var entityType, entityID string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the audit history of one entity as JSON, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required to read audit history")
			}
			switch entityType {
			case audit.EntitySuggestion, audit.EntityCandidate, audit.EntityTree:
			default:
				return fmt.Errorf("unknown entity type %q", entityType)
			}

			db, err := postgres.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			recs, err := auditpg.New(db).ListByEntity(cmd.Context(), entityType, entityID)
			if err != nil {
				return fmt.Errorf("list audit records: %w", err)
			}
			if recs == nil {
				recs = []audit.Record{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(recs)
		},
	}

	cmd.Flags().StringVar(&entityType, "entity-type", audit.EntitySuggestion, "suggestion, duplicate_candidate or tree")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "Entity identifier (required)")
	_ = cmd.MarkFlagRequired("entity-id")
	return cmd
}
