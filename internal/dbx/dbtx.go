// Package dbx holds the small database abstractions shared by the stores:
// a handle interface satisfied by both a pool and a transaction, and the
// scoped transaction guard every multi-table operation runs through.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// DBTX is the subset of sqlx used by the repositories.
// Both *sqlx.DB and *sqlx.Tx satisfy it, so a repository bound to a DBTX
// runs unchanged inside or outside a transaction.
type DBTX interface {
	sqlx.ExtContext
}

// Beginner opens transactions. *sqlx.DB implements it.
type Beginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// WithTx begins a transaction, runs fn with the transactional handle, then
// commits on success or rolls back on error or panic. Panics are rethrown.
//
// Rollback is best effort: a failed rollback is logged and the original
// error is returned unchanged. A failure to begin is returned as is; there
// is nothing to roll back.
//
//	err := dbx.WithTx(ctx, db, nil, logger, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE ..."), args...)
//	    return err
//	})
func WithTx(ctx context.Context, db Beginner, opts *sql.TxOptions, logger *slog.Logger, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(tx, logger)
			panic(p)
		}
		if err != nil {
			rollback(tx, logger)
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

func rollback(tx *sqlx.Tx, logger *slog.Logger) {
	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("transaction rollback failed", slog.String("error", rbErr.Error()))
	}
}
