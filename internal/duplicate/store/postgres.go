package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"lineage/internal/changes"
	"lineage/internal/duplicate/models"
	"lineage/pkg/platform/sentinel"
	"lineage/pkg/platform/tx"
)

// Postgres persists candidates. Methods join the transaction in ctx.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const candidateColumns = `id, person_a, person_b, score, mode, status, tree_id, target_tree_id,
	reasons, reviewer_id, reviewed_at, notes, snapshot, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*models.Candidate, error) {
	var (
		c            models.Candidate
		mode, status string
		reasons      []string
		reviewedAt   sql.NullTime
		notes        sql.NullString
		snapshotRaw  []byte
	)
	err := row.Scan(&c.ID, &c.PersonA, &c.PersonB, &c.Score, &mode, &status, &c.TreeID, &c.TargetTreeID,
		pq.Array(&reasons), &c.ReviewerID, &reviewedAt, &notes, &snapshotRaw, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Mode = models.Mode(mode)
	c.Status = models.Status(status)
	c.Reasons = reasons
	if c.Reasons == nil {
		c.Reasons = []string{}
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		c.ReviewedAt = &t
	}
	c.Notes = notes.String
	if len(snapshotRaw) > 0 {
		var snap changes.Snapshot
		if err := json.Unmarshal(snapshotRaw, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot of candidate %s: %w", c.ID, err)
		}
		c.Snapshot = &snap
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func snapshotValue(snap *changes.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Upsert inserts c or refreshes the pending row for its pair. The conflict
// clause leaves resolved rows untouched; RETURNING then yields nothing and
// the stored row is read back instead.
func (s *Postgres) Upsert(ctx context.Context, c *models.Candidate) (*models.Candidate, error) {
	snapshot, err := snapshotValue(c.Snapshot)
	if err != nil {
		return nil, err
	}
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO duplicate_candidates (`+candidateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (person_a, person_b) DO UPDATE
		SET score = EXCLUDED.score, mode = EXCLUDED.mode, reasons = EXCLUDED.reasons, updated_at = EXCLUDED.updated_at
		WHERE duplicate_candidates.status = 'pending'
		RETURNING `+candidateColumns,
		c.ID, c.PersonA, c.PersonB, c.Score, string(c.Mode), string(c.Status), c.TreeID, c.TargetTreeID,
		pq.Array(c.Reasons), c.ReviewerID, c.ReviewedAt, nullString(c.Notes), snapshot, c.CreatedAt, c.UpdatedAt)
	stored, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s.FindByPair(ctx, c.Pair())
	}
	if err != nil {
		return nil, fmt.Errorf("upsert duplicate candidate: %w", err)
	}
	return stored, nil
}

func (s *Postgres) FindByPair(ctx context.Context, pair models.Pair) (*models.Candidate, error) {
	return s.find(ctx, pair, "")
}

func (s *Postgres) FindByPairForUpdate(ctx context.Context, pair models.Pair) (*models.Candidate, error) {
	return s.find(ctx, pair, " FOR UPDATE")
}

func (s *Postgres) find(ctx context.Context, pair models.Pair, lock string) (*models.Candidate, error) {
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM duplicate_candidates WHERE person_a = $1 AND person_b = $2`+lock,
		pair.A, pair.B)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate candidate: %w", err)
	}
	return c, nil
}

func (s *Postgres) Update(ctx context.Context, c *models.Candidate) error {
	snapshot, err := snapshotValue(c.Snapshot)
	if err != nil {
		return err
	}
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE duplicate_candidates
		SET score = $2, mode = $3, status = $4, reasons = $5, reviewer_id = $6, reviewed_at = $7,
			notes = $8, snapshot = $9, updated_at = $10
		WHERE id = $1`,
		c.ID, c.Score, string(c.Mode), string(c.Status), pq.Array(c.Reasons), c.ReviewerID, c.ReviewedAt,
		nullString(c.Notes), snapshot, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update duplicate candidate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update duplicate candidate: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// scopeClause filters on the indexed (tree_id, target_tree_id, mode, score)
// columns. Cross-tree candidates may be stored with either tree first.
const scopeClause = `((tree_id = $1 AND target_tree_id = $2) OR (tree_id = $2 AND target_tree_id = $1))
	AND score >= $3 AND ($4::text IS NULL OR mode = $4)`

func scopeArgs(scope models.Scope) []any {
	var mode *string
	if scope.Mode != nil {
		m := string(*scope.Mode)
		mode = &m
	}
	return []any{scope.TreeID, scope.TargetTreeID, scope.MinConfidence, mode}
}

func (s *Postgres) List(ctx context.Context, scope models.Scope, status *models.Status, limit, offset int) ([]*models.Candidate, error) {
	var st *string
	if status != nil {
		v := string(*status)
		st = &v
	}
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	args := append(scopeArgs(scope), st, lim, offset)
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+candidateColumns+` FROM duplicate_candidates
		WHERE `+scopeClause+` AND ($5::text IS NULL OR status = $5)
		ORDER BY score DESC, id
		LIMIT $6 OFFSET $7`, args...)
	if err != nil {
		return nil, fmt.Errorf("list duplicate candidates: %w", err)
	}
	defer rows.Close()
	out := make([]*models.Candidate, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("list duplicate candidates: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Summarize counts candidates by bucket and status in one grouped query.
func (s *Postgres) Summarize(ctx context.Context, scope models.Scope) (*models.Summary, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT CASE
				WHEN score >= 90 THEN '90-100'
				WHEN score >= 80 THEN '80-89'
				WHEN score >= 70 THEN '70-79'
				WHEN score >= 50 THEN '50-69'
				ELSE '0-49'
			END AS bucket, status, count(*)
		FROM duplicate_candidates
		WHERE `+scopeClause+`
		GROUP BY 1, 2`, scopeArgs(scope)...)
	if err != nil {
		return nil, fmt.Errorf("summarize duplicate candidates: %w", err)
	}
	defer rows.Close()
	sum := models.NewSummary()
	for rows.Next() {
		var bucket, status string
		var n int
		if err := rows.Scan(&bucket, &status, &n); err != nil {
			return nil, fmt.Errorf("summarize duplicate candidates: %w", err)
		}
		sum.Add(models.Bucket(bucket), models.Status(status), n)
	}
	return sum, rows.Err()
}
