package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/friendship-plus/internal/apperror"
	"github.com/sakif/friendship-plus/internal/dbx"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/repository"
)

// compile-time check that *SessionStore implements repository.SessionRepository
var _ repository.SessionRepository = (*SessionStore)(nil)

// SessionStore persists issued tokens in auth_tokens.
type SessionStore struct {
	db dbx.DBTX
}

// NewSessionStore binds a SessionStore to a pool or transaction.
func NewSessionStore(db dbx.DBTX) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Record(ctx context.Context, session *model.Session) error {
	session.IssuedAt = dbTime(session.IssuedAt)
	session.ExpiresAt = dbTime(session.ExpiresAt)

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO auth_tokens (token, user_id, issued_at, expires_at) VALUES (?, ?, ?, ?)`),
		session.Token,
		session.UserID,
		session.IssuedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: recording session for user %s: %w", session.UserID, err)
	}
	return nil
}

// Get returns apperror.ErrNotFound when the token has no row. The token
// itself is never echoed into the error.
func (s *SessionStore) Get(ctx context.Context, token string) (*model.Session, error) {
	var sess model.Session
	err := sqlx.GetContext(ctx, s.db, &sess, s.db.Rebind(
		`SELECT token, user_id, issued_at, expires_at FROM auth_tokens WHERE token = ?`), token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "session not found"}
		}
		return nil, fmt.Errorf("sqlstore: getting session: %w", err)
	}
	sess.IssuedAt = sess.IssuedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	return &sess, nil
}

func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM auth_tokens WHERE token = ?`), token); err != nil {
		return fmt.Errorf("sqlstore: revoking session: %w", err)
	}
	return nil
}

func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM auth_tokens WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("sqlstore: revoking sessions for user %s: %w", userID, err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM auth_tokens WHERE expires_at <= ?`), dbTime(before))
	if err != nil {
		return 0, fmt.Errorf("sqlstore: deleting expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: reading affected rows: %w", err)
	}
	return n, nil
}
