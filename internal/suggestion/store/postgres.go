package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lineage/internal/changes"
	"lineage/internal/platform/postgres"
	"lineage/internal/suggestion/models"
	id "lineage/pkg/domain"
	"lineage/pkg/platform/sentinel"
	"lineage/pkg/platform/tx"
)

// Postgres persists suggestions. Methods join the transaction in ctx.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const suggestionColumns = `id, type, status, submitter_id, town_id, tree_id, target_person_id,
	secondary_person_id, change, snapshot, reviewer_id, reviewed_at, reviewer_notes, review_reason,
	withdrawn_at, withdrawal_reason, rolled_back_by, rolled_back_at, rollback_reason,
	deleted_by, deleted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSuggestion(row rowScanner) (*models.Suggestion, error) {
	var (
		sg                                  models.Suggestion
		kind, status                        string
		changeRaw, snapshotRaw              []byte
		reviewerID, rolledBackBy, deletedBy *id.UserID
		reviewedAt, withdrawnAt             sql.NullTime
		rolledBackAt, deletedAt             sql.NullTime
		notes, reason, withdrawalReason     sql.NullString
		rollbackReason                      sql.NullString
	)
	err := row.Scan(&sg.ID, &kind, &status, &sg.SubmitterID, &sg.TownID, &sg.TreeID, &sg.TargetPersonID,
		&sg.SecondaryPersonID, &changeRaw, &snapshotRaw, &reviewerID, &reviewedAt, &notes, &reason,
		&withdrawnAt, &withdrawalReason, &rolledBackBy, &rolledBackAt, &rollbackReason,
		&deletedBy, &deletedAt, &sg.CreatedAt, &sg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sg.Type = changes.Kind(kind)
	sg.Status = models.Status(status)

	if sg.Change, err = changes.Decode(changeRaw); err != nil {
		return nil, fmt.Errorf("decode change of suggestion %s: %w", sg.ID, err)
	}
	if len(snapshotRaw) > 0 {
		var snap changes.Snapshot
		if err := json.Unmarshal(snapshotRaw, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot of suggestion %s: %w", sg.ID, err)
		}
		sg.Snapshot = &snap
	}
	if reviewerID != nil && reviewedAt.Valid {
		sg.Review = &models.Review{ReviewerID: *reviewerID, ReviewedAt: reviewedAt.Time.UTC(), Notes: notes.String, Reason: reason.String}
	}
	if withdrawnAt.Valid {
		sg.Withdrawal = &models.Withdrawal{At: withdrawnAt.Time.UTC(), Reason: withdrawalReason.String}
	}
	if rolledBackBy != nil && rolledBackAt.Valid {
		sg.Rollback = &models.RollbackRecord{By: *rolledBackBy, At: rolledBackAt.Time.UTC(), Reason: rollbackReason.String}
	}
	if deletedBy != nil && deletedAt.Valid {
		sg.Deletion = &models.Deletion{By: *deletedBy, At: deletedAt.Time.UTC()}
	}
	sg.CreatedAt = sg.CreatedAt.UTC()
	sg.UpdatedAt = sg.UpdatedAt.UTC()
	return &sg, nil
}

// columnValues flattens sg in suggestionColumns order.
func columnValues(sg *models.Suggestion) ([]any, error) {
	change, err := changes.Encode(sg.Change)
	if err != nil {
		return nil, err
	}
	var snapshot []byte
	if sg.Snapshot != nil {
		if snapshot, err = json.Marshal(sg.Snapshot); err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
	}

	var (
		reviewerID, rolledBackBy, deletedBy *id.UserID
		reviewedAt, withdrawnAt             *time.Time
		rolledBackAt, deletedAt             *time.Time
		notes, reason, withdrawalReason     *string
		rollbackReason                      *string
	)
	if r := sg.Review; r != nil {
		reviewerID, reviewedAt, notes, reason = &r.ReviewerID, &r.ReviewedAt, &r.Notes, &r.Reason
	}
	if w := sg.Withdrawal; w != nil {
		withdrawnAt, withdrawalReason = &w.At, &w.Reason
	}
	if rb := sg.Rollback; rb != nil {
		rolledBackBy, rolledBackAt, rollbackReason = &rb.By, &rb.At, &rb.Reason
	}
	if d := sg.Deletion; d != nil {
		deletedBy, deletedAt = &d.By, &d.At
	}

	return []any{
		sg.ID, string(sg.Type), string(sg.Status), sg.SubmitterID, sg.TownID, sg.TreeID, sg.TargetPersonID,
		sg.SecondaryPersonID, []byte(change), snapshot, reviewerID, reviewedAt, notes, reason,
		withdrawnAt, withdrawalReason, rolledBackBy, rolledBackAt, rollbackReason,
		deletedBy, deletedAt, sg.CreatedAt, sg.UpdatedAt,
	}, nil
}

func collect(rows *sql.Rows) ([]*models.Suggestion, error) {
	defer rows.Close()
	var out []*models.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

func (s *Postgres) Create(ctx context.Context, sg *models.Suggestion) error {
	args, err := columnValues(sg)
	if err != nil {
		return err
	}
	_, err = tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO suggestions (`+suggestionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`, args...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create suggestion: %w", err)
	}
	return nil
}

func (s *Postgres) find(ctx context.Context, sid id.SuggestionID, lock bool) (*models.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	sg, err := scanSuggestion(tx.Executor(ctx, s.db).QueryRowContext(ctx, query, sid))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find suggestion: %w", err)
	}
	return sg, nil
}

func (s *Postgres) FindByID(ctx context.Context, sid id.SuggestionID) (*models.Suggestion, error) {
	return s.find(ctx, sid, false)
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (s *Postgres) FindByIDForUpdate(ctx context.Context, sid id.SuggestionID) (*models.Suggestion, error) {
	return s.find(ctx, sid, true)
}

func (s *Postgres) Update(ctx context.Context, sg *models.Suggestion) error {
	args, err := columnValues(sg)
	if err != nil {
		return err
	}
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE suggestions SET
			type = $2, status = $3, submitter_id = $4, town_id = $5, tree_id = $6, target_person_id = $7,
			secondary_person_id = $8, change = $9, snapshot = $10, reviewer_id = $11, reviewed_at = $12,
			reviewer_notes = $13, review_reason = $14, withdrawn_at = $15, withdrawal_reason = $16,
			rolled_back_by = $17, rolled_back_at = $18, rollback_reason = $19,
			deleted_by = $20, deleted_at = $21, created_at = $22, updated_at = $23
		WHERE id = $1
	`, args...)
	if err != nil {
		return fmt.Errorf("update suggestion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update suggestion: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Execute locks the row, runs validate then mutate and writes the result,
// all in one transaction.
func (s *Postgres) Execute(ctx context.Context, sid id.SuggestionID, validate func(*models.Suggestion) error, mutate func(*models.Suggestion)) (*models.Suggestion, error) {
	var result *models.Suggestion
	runner := tx.NewPostgresRunner(s.db, 0)
	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		sg, err := s.FindByIDForUpdate(txCtx, sid)
		if err != nil {
			return err
		}
		if err := validate(sg); err != nil {
			return err
		}
		mutate(sg)
		if err := s.Update(txCtx, sg); err != nil {
			return err
		}
		result = sg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func limitOffset(p models.Page) (int, int) {
	p = p.Normalize()
	return p.Limit, p.Offset
}

func (s *Postgres) ListBySubmitter(ctx context.Context, submitter id.UserID, f models.MineFilter) ([]*models.Suggestion, error) {
	limit, offset := limitOffset(f.Page)
	var status *string
	if f.Status != nil {
		v := string(*f.Status)
		status = &v
	}
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+suggestionColumns+` FROM suggestions
		WHERE submitter_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, submitter, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list suggestions by submitter: %w", err)
	}
	return collect(rows)
}

// whereBuilder accumulates positional predicates.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) reach(r models.Reach) {
	if r.All {
		return
	}
	towns := make([]string, len(r.Towns))
	for i, t := range r.Towns {
		towns[i] = uuid.UUID(t).String()
	}
	trees := make([]string, len(r.Trees))
	for i, t := range r.Trees {
		trees[i] = uuid.UUID(t).String()
	}
	w.add("(town_id = ANY(?::uuid[]) OR tree_id = ANY(?::uuid[]))", pq.Array(towns), pq.Array(trees))
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (s *Postgres) ListQueue(ctx context.Context, f models.QueueFilter) ([]*models.Suggestion, error) {
	var w whereBuilder
	w.add("deleted_at IS NULL")
	w.reach(f.Reach)
	if f.TownID != nil {
		w.add("town_id = ?", *f.TownID)
	}
	if f.Status != nil {
		w.add("status = ?", string(*f.Status))
	}
	if f.Type != nil {
		w.add("type = ?", string(*f.Type))
	}
	limit, offset := limitOffset(f.Page)
	w.args = append(w.args, limit, offset)
	query := `SELECT ` + suggestionColumns + ` FROM suggestions` + w.sql() +
		fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d OFFSET $%d`, len(w.args)-1, len(w.args))

	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list suggestion queue: %w", err)
	}
	return collect(rows)
}

func (s *Postgres) FindOpenByKey(ctx context.Context, key models.DuplicateKey) ([]*models.Suggestion, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+suggestionColumns+` FROM suggestions
		WHERE deleted_at IS NULL
		  AND status IN ('pending', 'more_info_requested')
		  AND tree_id = $1 AND type = $2 AND target_person_id = $3
		  AND secondary_person_id IS NOT DISTINCT FROM $4
		ORDER BY created_at, id
	`, key.TreeID, string(key.Type), key.TargetPersonID, key.SecondaryPersonID)
	if err != nil {
		return nil, fmt.Errorf("find open suggestions: %w", err)
	}
	return collect(rows)
}

func (s *Postgres) CountPendingByTown(ctx context.Context, reach models.Reach) ([]models.TownCount, error) {
	var w whereBuilder
	w.add("deleted_at IS NULL")
	w.add("status = 'pending'")
	w.reach(reach)
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT town_id, count(*) FROM suggestions`+w.sql()+` GROUP BY town_id ORDER BY count(*) DESC, town_id`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("count pending suggestions: %w", err)
	}
	defer rows.Close()
	var out []models.TownCount
	for rows.Next() {
		var tc models.TownCount
		if err := rows.Scan(&tc.TownID, &tc.Pending); err != nil {
			return nil, fmt.Errorf("scan pending count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (s *Postgres) Statistics(ctx context.Context, reach models.Reach, town *id.TownID) (*models.Statistics, error) {
	var w whereBuilder
	w.reach(reach)
	if town != nil {
		w.add("town_id = ?", *town)
	}
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT status, type, deleted_at IS NOT NULL, count(*) FROM suggestions`+w.sql()+
			` GROUP BY status, type, deleted_at IS NOT NULL`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("suggestion statistics: %w", err)
	}
	defer rows.Close()

	st := models.NewStatistics()
	for rows.Next() {
		var (
			status, kind string
			deleted      bool
			n            int
		)
		if err := rows.Scan(&status, &kind, &deleted, &n); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		if deleted {
			st.Deleted += n
			continue
		}
		st.Total += n
		st.ByStatus[models.Status(status)] += n
		st.ByType[changes.Kind(kind)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("suggestion statistics: %w", err)
	}
	st.Finalize()
	return st, nil
}

func (s *Postgres) AddEvidence(ctx context.Context, e *models.Evidence) error {
	_, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO suggestion_evidence (id, suggestion_id, description, attachment_ref, submitted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.SuggestionID, e.Description, e.AttachmentRef, e.SubmittedBy, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("add evidence: %w", err)
	}
	return nil
}

func (s *Postgres) ListEvidence(ctx context.Context, sid id.SuggestionID) ([]*models.Evidence, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT id, suggestion_id, description, attachment_ref, submitted_by, created_at
		FROM suggestion_evidence WHERE suggestion_id = $1 ORDER BY created_at, id
	`, sid)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()
	out := []*models.Evidence{}
	for rows.Next() {
		var e models.Evidence
		if err := rows.Scan(&e.ID, &e.SuggestionID, &e.Description, &e.AttachmentRef, &e.SubmittedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Postgres) AddComment(ctx context.Context, c *models.Comment) error {
	_, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO suggestion_comments (id, suggestion_id, author_id, is_admin, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.SuggestionID, c.AuthorID, c.IsAdmin, c.Body, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

func (s *Postgres) ListComments(ctx context.Context, sid id.SuggestionID) ([]*models.Comment, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT id, suggestion_id, author_id, is_admin, body, created_at
		FROM suggestion_comments WHERE suggestion_id = $1 ORDER BY created_at, id
	`, sid)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	out := []*models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.SuggestionID, &c.AuthorID, &c.IsAdmin, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, &c)
	}
	return out, rows.Err()
}
