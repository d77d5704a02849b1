// Package export renders duplicate candidates as a spreadsheet for reviewers
// who triage offline.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"lineage/internal/duplicate/models"
)

const (
	SheetName   = "Candidates"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var header = []any{
	"Person A", "Person B", "Score", "Bucket", "Mode", "Status",
	"Tree", "Target tree", "Reasons", "Reviewer", "Reviewed at", "Notes", "Updated at",
}

// WriteCandidates writes one header row and one row per candidate, in the
// order given.
func WriteCandidates(w io.Writer, candidates []*models.Candidate) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("open sheet writer: %w", err)
	}
	if err := sw.SetRow("A1", header, excelize.RowOpts{StyleID: bold}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, c := range candidates {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row(c)); err != nil {
			return fmt.Errorf("write candidate %s: %w", c.ID, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func row(c *models.Candidate) []any {
	reviewer, reviewedAt := "", ""
	if c.ReviewerID != nil {
		reviewer = c.ReviewerID.String()
	}
	if c.ReviewedAt != nil {
		reviewedAt = c.ReviewedAt.UTC().Format(time.RFC3339)
	}
	return []any{
		c.PersonA.String(),
		c.PersonB.String(),
		c.Score,
		string(models.BucketFor(c.Score)),
		string(c.Mode),
		string(c.Status),
		c.TreeID.String(),
		c.TargetTreeID.String(),
		strings.Join(c.Reasons, "; "),
		reviewer,
		reviewedAt,
		c.Notes,
		c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
