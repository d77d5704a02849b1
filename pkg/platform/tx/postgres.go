package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "lineage/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// PostgresRunner runs units of work in a database/sql transaction.
type PostgresRunner struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresRunner builds a runner over db. A zero timeout uses the default.
func NewPostgresRunner(db *sql.DB, timeout time.Duration) *PostgresRunner {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &PostgresRunner{db: db, timeout: timeout}
}

func (r *PostgresRunner) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}
