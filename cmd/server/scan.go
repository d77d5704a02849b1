package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lineage/internal/duplicate/models"
	"lineage/internal/policy"
	id "lineage/pkg/domain"
	"lineage/pkg/requestcontext"
)

func newScanCmd() *cobra.Command {
	var (
		actor      string
		tree       string
		targetTree string
		mode       string
		threshold  int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a tree for duplicate people and print the result as JSON",
		Long: "Runs a duplicate scan against the configured database as a super admin. " +
			"Candidates are stored exactly as an API scan would store them.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required for an offline scan")
			}
			actorID, err := id.ParseUserID(actor)
			if err != nil {
				return fmt.Errorf("invalid --actor: %w", err)
			}

			a, err := buildApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			req := &models.ScanRequest{TreeID: tree, TargetTreeID: targetTree, Mode: models.Mode(mode)}
			if cmd.Flags().Changed("min-confidence") {
				req.MinConfidence = &threshold
			}
			ctx := requestcontext.WithPrincipal(cmd.Context(), requestcontext.Principal{
				UserID: actorID,
				Roles:  []string{string(policy.RoleSuperAdmin)},
			})
			res, err := a.duplicates.ScanDuplicates(ctx, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "User ID recorded as the scan actor (required)")
	cmd.Flags().StringVarP(&tree, "tree", "t", "", "Tree to scan (required)")
	cmd.Flags().StringVar(&targetTree, "target-tree", "", "Second tree for a cross-tree scan")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(models.ModeFuzzy), "Name matching mode: exact, fuzzy or phonetic")
	cmd.Flags().IntVar(&threshold, "min-confidence", 0, "Minimum confidence to keep a candidate")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("tree")

	return cmd
}
