package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lineage/internal/graph"
	"lineage/internal/platform/postgres"
	id "lineage/pkg/domain"
	"lineage/pkg/platform/sentinel"
	"lineage/pkg/platform/tx"
)

// Postgres persists the graph. Every method joins the transaction carried in
// ctx when there is one.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const personColumns = `id, tree_id, given_name, surname, sex, birth_date, death_date,
	birth_place, death_place, merged_into, deleted_at`

const edgeColumns = `id, parent_id, child_id, relationship, union_id`

const unionColumns = `id, partner_a, partner_b, kind, start_date, end_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*graph.Person, error) {
	var (
		p          graph.Person
		sex        string
		mergedInto *id.PersonID
		deletedAt  sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.TreeID, &p.GivenName, &p.Surname, &sex, &p.BirthDate, &p.DeathDate,
		&p.BirthPlace, &p.DeathPlace, &mergedInto, &deletedAt); err != nil {
		return nil, err
	}
	p.Sex = graph.Sex(sex)
	p.MergedInto = mergedInto
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	return &p, nil
}

func scanEdge(row rowScanner) (*graph.ParentChild, error) {
	var (
		e   graph.ParentChild
		rel string
	)
	if err := row.Scan(&e.ID, &e.ParentID, &e.ChildID, &rel, &e.UnionID); err != nil {
		return nil, err
	}
	e.Relationship = graph.Relationship(rel)
	return &e, nil
}

func scanUnion(row rowScanner) (*graph.Union, error) {
	var (
		u    graph.Union
		kind string
	)
	if err := row.Scan(&u.ID, &u.PartnerA, &u.PartnerB, &kind, &u.StartDate, &u.EndDate); err != nil {
		return nil, err
	}
	u.Kind = graph.UnionKind(kind)
	return &u, nil
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	return err
}

func uuidArray[T ~[16]byte](ids []T) any {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = uuid.UUID(v).String()
	}
	return pq.Array(out)
}

func expectOne(res sql.Result, err error, mismatch error) error {
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mismatch
	}
	return nil
}

// -----------------------------------------------------------------------------
// Persons
// -----------------------------------------------------------------------------

func (s *Postgres) CreatePerson(ctx context.Context, p *graph.Person) error {
	_, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO persons (`+personColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.TreeID, p.GivenName, p.Surname, string(p.Sex), p.BirthDate, p.DeathDate,
		p.BirthPlace, p.DeathPlace, p.MergedInto, p.DeletedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

func (s *Postgres) FindPerson(ctx context.Context, personID id.PersonID) (*graph.Person, error) {
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = $1`, personID)
	p, err := scanPerson(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// LockPersons takes row locks in id order so concurrent merges touching the
// same people cannot deadlock.
func (s *Postgres) LockPersons(ctx context.Context, personIDs ...id.PersonID) error {
	if len(personIDs) == 0 {
		return nil
	}
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT id FROM persons WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE
	`, uuidArray(personIDs))
	if err != nil {
		return fmt.Errorf("lock persons: %w", err)
	}
	defer rows.Close()
	found := 0
	for rows.Next() {
		found++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock persons: %w", err)
	}
	if found < len(uniquePersons(personIDs)) {
		return sentinel.ErrNotFound
	}
	return nil
}

func uniquePersons(ids []id.PersonID) map[id.PersonID]struct{} {
	set := make(map[id.PersonID]struct{}, len(ids))
	for _, p := range ids {
		set[p] = struct{}{}
	}
	return set
}

func (s *Postgres) ListPeopleInTree(ctx context.Context, treeID id.TreeID) ([]*graph.Person, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+personColumns+` FROM persons
		WHERE tree_id = $1 AND deleted_at IS NULL
		ORDER BY id
	`, treeID)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	return collect(rows, scanPerson)
}

// fieldColumns maps editable facts to their columns. Column names never come
// from user input.
var fieldColumns = map[graph.PersonField]string{
	graph.FieldGivenName:  "given_name",
	graph.FieldSurname:    "surname",
	graph.FieldSex:        "sex",
	graph.FieldBirthDate:  "birth_date",
	graph.FieldDeathDate:  "death_date",
	graph.FieldBirthPlace: "birth_place",
	graph.FieldDeathPlace: "death_place",
}

func (s *Postgres) UpdatePersonField(ctx context.Context, personID id.PersonID, field graph.PersonField, expected, value *string) error {
	col, ok := fieldColumns[field]
	if !ok {
		return fmt.Errorf("unknown person field %q", field)
	}
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE persons SET `+col+` = $2
		WHERE id = $1 AND `+col+` IS NOT DISTINCT FROM $3
	`, personID, value, expected)
	if err := expectOne(res, err, sentinel.ErrConflict); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.conflictOrMissing(ctx, personID)
		}
		return fmt.Errorf("update person field: %w", err)
	}
	return nil
}

func (s *Postgres) conflictOrMissing(ctx context.Context, personID id.PersonID) error {
	if _, err := s.FindPerson(ctx, personID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

func (s *Postgres) MarkPersonMerged(ctx context.Context, absorbed, keep id.PersonID, at time.Time) error {
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE persons SET merged_into = $2, deleted_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`, absorbed, keep, at)
	if err := expectOne(res, err, sentinel.ErrConflict); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.conflictOrMissing(ctx, absorbed)
		}
		return fmt.Errorf("mark person merged: %w", err)
	}
	return nil
}

func (s *Postgres) RestorePerson(ctx context.Context, personID id.PersonID) error {
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE persons SET merged_into = NULL, deleted_at = NULL
		WHERE id = $1 AND deleted_at IS NOT NULL
	`, personID)
	if err := expectOne(res, err, sentinel.ErrConflict); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.conflictOrMissing(ctx, personID)
		}
		return fmt.Errorf("restore person: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Parent-child edges
// -----------------------------------------------------------------------------

func (s *Postgres) FindParentChild(ctx context.Context, parent, child id.PersonID) (*graph.ParentChild, error) {
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+edgeColumns+` FROM parent_child WHERE parent_id = $1 AND child_id = $2
	`, parent, child)
	e, err := scanEdge(row)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (s *Postgres) FindParentChildByID(ctx context.Context, edgeID id.ParentChildID) (*graph.ParentChild, error) {
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+edgeColumns+` FROM parent_child WHERE id = $1`, edgeID)
	e, err := scanEdge(row)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (s *Postgres) ListParentChildByPerson(ctx context.Context, personID id.PersonID) ([]*graph.ParentChild, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM parent_child
		WHERE parent_id = $1 OR child_id = $1
		ORDER BY id
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("list edges by person: %w", err)
	}
	return collect(rows, scanEdge)
}

func (s *Postgres) ListParentChildByUnion(ctx context.Context, unionID id.UnionID) ([]*graph.ParentChild, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM parent_child WHERE union_id = $1 ORDER BY id
	`, unionID)
	if err != nil {
		return nil, fmt.Errorf("list edges by union: %w", err)
	}
	return collect(rows, scanEdge)
}

func (s *Postgres) ListParentChildForPersons(ctx context.Context, personIDs []id.PersonID) ([]*graph.ParentChild, error) {
	if len(personIDs) == 0 {
		return nil, nil
	}
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM parent_child
		WHERE parent_id = ANY($1::uuid[]) OR child_id = ANY($1::uuid[])
		ORDER BY id
	`, uuidArray(personIDs))
	if err != nil {
		return nil, fmt.Errorf("list edges for persons: %w", err)
	}
	return collect(rows, scanEdge)
}

func (s *Postgres) InsertParentChild(ctx context.Context, e *graph.ParentChild) error {
	_, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO parent_child (`+edgeColumns+`) VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.ParentID, e.ChildID, string(e.Relationship), e.UnionID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert parent-child: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteParentChild(ctx context.Context, e graph.ParentChild) error {
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		DELETE FROM parent_child
		WHERE id = $1 AND parent_id = $2 AND child_id = $3 AND relationship = $4
		  AND union_id IS NOT DISTINCT FROM $5
	`, e.ID, e.ParentID, e.ChildID, string(e.Relationship), e.UnionID)
	if err := expectOne(res, err, sentinel.ErrConflict); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.edgeConflictOrMissing(ctx, e.ID)
		}
		return fmt.Errorf("delete parent-child: %w", err)
	}
	return nil
}

func (s *Postgres) edgeConflictOrMissing(ctx context.Context, edgeID id.ParentChildID) error {
	var exists bool
	err := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM parent_child WHERE id = $1)`, edgeID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check parent-child: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *Postgres) RepointParentChild(ctx context.Context, edgeID id.ParentChildID, parent, child id.PersonID) error {
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE parent_child SET parent_id = $2, child_id = $3 WHERE id = $1
	`, edgeID, parent, child)
	if err := expectOne(res, err, sentinel.ErrNotFound); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		return fmt.Errorf("repoint parent-child: %w", err)
	}
	return nil
}

func (s *Postgres) SetParentChildUnion(ctx context.Context, edgeID id.ParentChildID, unionID *id.UnionID) error {
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE parent_child SET union_id = $2 WHERE id = $1`, edgeID, unionID)
	if err := expectOne(res, err, sentinel.ErrNotFound); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		return fmt.Errorf("set parent-child union: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Unions
// -----------------------------------------------------------------------------

func (s *Postgres) FindUnion(ctx context.Context, a, b id.PersonID) (*graph.Union, error) {
	a, b = id.CanonicalPair(a, b)
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+unionColumns+` FROM unions WHERE partner_a = $1 AND partner_b = $2
	`, a, b)
	u, err := scanUnion(row)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Postgres) FindUnionByID(ctx context.Context, unionID id.UnionID) (*graph.Union, error) {
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+unionColumns+` FROM unions WHERE id = $1`, unionID)
	u, err := scanUnion(row)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Postgres) CountChildrenOfUnion(ctx context.Context, unionID id.UnionID) (int, error) {
	var n int
	err := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT count(*) FROM parent_child WHERE union_id = $1`, unionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count union children: %w", err)
	}
	return n, nil
}

func (s *Postgres) ListUnionsByPerson(ctx context.Context, personID id.PersonID) ([]*graph.Union, error) {
	return s.ListUnionsForPersons(ctx, []id.PersonID{personID})
}

func (s *Postgres) ListUnionsForPersons(ctx context.Context, personIDs []id.PersonID) ([]*graph.Union, error) {
	if len(personIDs) == 0 {
		return nil, nil
	}
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+unionColumns+` FROM unions
		WHERE partner_a = ANY($1::uuid[]) OR partner_b = ANY($1::uuid[])
		ORDER BY id
	`, uuidArray(personIDs))
	if err != nil {
		return nil, fmt.Errorf("list unions: %w", err)
	}
	return collect(rows, scanUnion)
}

func (s *Postgres) InsertUnion(ctx context.Context, u *graph.Union) error {
	a, b := id.CanonicalPair(u.PartnerA, u.PartnerB)
	_, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO unions (`+unionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, a, b, string(u.Kind), u.StartDate, u.EndDate)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert union: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteUnion(ctx context.Context, u graph.Union) error {
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		DELETE FROM unions
		WHERE id = $1 AND partner_a = $2 AND partner_b = $3 AND kind = $4
		  AND NOT EXISTS (SELECT 1 FROM parent_child WHERE union_id = $1)
	`, u.ID, u.PartnerA, u.PartnerB, string(u.Kind))
	if err := expectOne(res, err, sentinel.ErrConflict); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			return fmt.Errorf("delete union: %w", err)
		}
		var exists bool
		if qErr := tx.Executor(ctx, s.db).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM unions WHERE id = $1)`, u.ID).Scan(&exists); qErr != nil {
			return fmt.Errorf("check union: %w", qErr)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) RepointUnion(ctx context.Context, unionID id.UnionID, a, b id.PersonID) error {
	a, b = id.CanonicalPair(a, b)
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE unions SET partner_a = $2, partner_b = $3 WHERE id = $1`, unionID, a, b)
	if err := expectOne(res, err, sentinel.ErrNotFound); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		return fmt.Errorf("repoint union: %w", err)
	}
	return nil
}
