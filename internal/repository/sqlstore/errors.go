package sqlstore

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// pgUniqueViolation is the SQLSTATE PostgreSQL reports for a duplicate key.
const pgUniqueViolation = "23505"

// constraintFields maps the named unique constraints on users to the
// request field each protects.
var constraintFields = map[string]string{
	"users_username_key": "username",
	"users_email_key":    "email",
	"users_phone_key":    "phone",
}

// columnFields maps users columns to request field names. SQLite reports
// the column rather than the constraint name.
var columnFields = map[string]string{
	"username": "username",
	"email":    "email",
	"phone":    "phone",
}

// uniqueViolation reports whether err is a unique-constraint violation and,
// for the users identity constraints, which request fields collided.
func uniqueViolation(err error) ([]string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return nil, false
		}
		if field, ok := constraintFields[pgErr.ConstraintName]; ok {
			return []string{field}, true
		}
		return nil, true
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return nil, false
		}
		return sqliteUniqueColumns(liteErr.Error()), true
	}

	return nil, false
}

// sqliteUniqueColumns parses "UNIQUE constraint failed: users.username, users.email".
func sqliteUniqueColumns(msg string) []string {
	_, cols, ok := strings.Cut(msg, "UNIQUE constraint failed: ")
	if !ok {
		return nil
	}
	if i := strings.Index(cols, " ("); i >= 0 {
		cols = cols[:i]
	}

	var fields []string
	for _, col := range strings.Split(cols, ",") {
		col = strings.TrimSpace(col)
		if i := strings.LastIndex(col, "."); i >= 0 {
			col = col[i+1:]
		}
		if field, ok := columnFields[col]; ok {
			fields = append(fields, field)
		}
	}
	return fields
}
