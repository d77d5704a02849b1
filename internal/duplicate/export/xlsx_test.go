package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"lineage/internal/duplicate/models"
	id "lineage/pkg/domain"
)

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	require.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	return rows
}

func TestWriteCandidates(t *testing.T) {
	tree := id.TreeID(uuid.New())
	at := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)

	pending, err := models.NewCandidate(id.NewPersonID(), id.NewPersonID(), 84, models.ModeFuzzy, tree, tree,
		[]string{"name similarity 0.92", "birth same year"}, at)
	require.NoError(t, err)

	reviewer := id.UserID(uuid.New())
	merged, err := models.NewCandidate(id.NewPersonID(), id.NewPersonID(), 95, models.ModeExact, tree, tree, nil, at)
	require.NoError(t, err)
	merged.Status = models.StatusMerged
	merged.ReviewerID = &reviewer
	merged.ReviewedAt = &at
	merged.Notes = "same baptism record"

	var buf bytes.Buffer
	require.NoError(t, WriteCandidates(&buf, []*models.Candidate{pending, merged}))

	rows := readRows(t, buf.Bytes())
	require.Len(t, rows, 3)
	assert.Equal(t, "Person A", rows[0][0])
	assert.Equal(t, "Updated at", rows[0][12])

	assert.Equal(t, pending.PersonA.String(), rows[1][0])
	assert.Equal(t, "84", rows[1][2])
	assert.Equal(t, "80-89", rows[1][3])
	assert.Equal(t, "fuzzy", rows[1][4])
	assert.Equal(t, "pending", rows[1][5])
	assert.Equal(t, "name similarity 0.92; birth same year", rows[1][8])

	assert.Equal(t, "90-100", rows[2][3])
	assert.Equal(t, "merged", rows[2][5])
	assert.Equal(t, reviewer.String(), rows[2][9])
	assert.Equal(t, "2026-05-01T08:30:00Z", rows[2][10])
	assert.Equal(t, "same baptism record", rows[2][11])
}

func TestWriteCandidatesEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCandidates(&buf, nil))

	rows := readRows(t, buf.Bytes())
	require.Len(t, rows, 1, "header only")
}
