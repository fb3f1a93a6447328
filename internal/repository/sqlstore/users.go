package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/friendship-plus/internal/apperror"
	"github.com/sakif/friendship-plus/internal/dbx"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/repository"
)

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

const userColumns = `id, username, password_hash, email, phone, first_name, last_name, created_at, last_login_at`

// UserStore is the credential store.
type UserStore struct {
	db dbx.DBTX
}

// NewUserStore binds a UserStore to a pool or transaction.
func NewUserStore(db dbx.DBTX) *UserStore {
	return &UserStore{db: db}
}

// FindConflicting checks all three identity fields in one query. Several
// other users may each hold one of the values, so every returned row counts.
func (s *UserStore) FindConflicting(ctx context.Context, username, email, phone, excludeID string) ([]string, error) {
	var (
		preds []string
		args  []any
	)
	for _, c := range []struct{ col, val string }{
		{"username", username},
		{"email", email},
		{"phone", phone},
	} {
		if c.val != "" {
			preds = append(preds, c.col+" = ?")
			args = append(args, c.val)
		}
	}
	if len(preds) == 0 {
		return nil, nil
	}
	args = append(args, excludeID)

	query := `SELECT username, email, phone FROM users WHERE (` + strings.Join(preds, " OR ") + `) AND id <> ?`

	var rows []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
		Phone    string `db:"phone"`
	}
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlstore: checking identity conflicts: %w", err)
	}

	var dupUser, dupEmail, dupPhone bool
	for _, r := range rows {
		dupUser = dupUser || (username != "" && r.Username == username)
		dupEmail = dupEmail || (email != "" && r.Email == email)
		dupPhone = dupPhone || (phone != "" && r.Phone == phone)
	}

	var fields []string
	if dupUser {
		fields = append(fields, "username")
	}
	if dupEmail {
		fields = append(fields, "email")
	}
	if dupPhone {
		fields = append(fields, "phone")
	}
	return fields, nil
}

// Create inserts a new user, assigning its ID and CreatedAt.
// A unique violation is reported as apperror.Conflict.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = dbTime(time.Now())
	user.LastLoginAt = nil

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO users (id, username, password_hash, email, phone, first_name, last_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID,
		user.Username,
		user.PasswordHash,
		user.Email,
		user.Phone,
		user.FirstName,
		user.LastName,
		user.CreatedAt,
	)
	if err != nil {
		if fields, ok := uniqueViolation(err); ok {
			return apperror.Conflict(fields...)
		}
		return fmt.Errorf("sqlstore: inserting user %q: %w", user.Username, err)
	}
	return nil
}

// GetByID returns apperror.ErrNotFound if no user exists with that ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByUsername looks a user up by username only.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (s *UserStore) getOne(ctx context.Context, query, key string) (*model.User, error) {
	var u model.User
	if err := sqlx.GetContext(ctx, s.db, &u, s.db.Rebind(query), key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("sqlstore: getting user %s: %w", key, err)
	}
	normalizeUser(&u)
	return &u, nil
}

// GetByIDs batch-loads users. Unknown IDs are simply absent from the result.
func (s *UserStore) GetByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building batch user query: %w", err)
	}

	var users []model.User
	if err := sqlx.SelectContext(ctx, s.db, &users, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlstore: batch loading %d users: %w", len(ids), err)
	}
	for i := range users {
		normalizeUser(&users[i])
	}
	return users, nil
}

// List returns every user, oldest first.
func (s *UserStore) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := sqlx.SelectContext(ctx, s.db, &users,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`,
	); err != nil {
		return nil, fmt.Errorf("sqlstore: listing users: %w", err)
	}
	for i := range users {
		normalizeUser(&users[i])
	}
	return users, nil
}

// Update writes the mutable columns of user.
func (s *UserStore) Update(ctx context.Context, user *model.User) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE users
		 SET username = ?, password_hash = ?, email = ?, phone = ?, first_name = ?, last_name = ?
		 WHERE id = ?`),
		user.Username,
		user.PasswordHash,
		user.Email,
		user.Phone,
		user.FirstName,
		user.LastName,
		user.ID,
	)
	if err != nil {
		if fields, ok := uniqueViolation(err); ok {
			return apperror.Conflict(fields...)
		}
		return fmt.Errorf("sqlstore: updating user %s: %w", user.ID, err)
	}
	return expectOne(res, "user", user.ID)
}

func (s *UserStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE users SET last_login_at = ? WHERE id = ?`), dbTime(at), id)
	if err != nil {
		return fmt.Errorf("sqlstore: touching last login for %s: %w", id, err)
	}
	return expectOne(res, "user", id)
}

// Delete removes the user row. Callers delete dependent rows first.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting user %s: %w", id, err)
	}
	return expectOne(res, "user", id)
}

func normalizeUser(u *model.User) {
	u.CreatedAt = u.CreatedAt.UTC()
	if u.LastLoginAt != nil {
		t := u.LastLoginAt.UTC()
		u.LastLoginAt = &t
	}
}

// dbTime is the form every timestamp takes before it is written: UTC at the
// microsecond precision both backends keep.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func expectOne(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: reading affected rows: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
