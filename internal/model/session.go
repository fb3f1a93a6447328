package model

import "time"

// Session is the server-side record of an issued token.
//
// ExpiresAt always equals the "exp" claim inside the signed token, so the
// stored row and the token agree on when the session ends.
type Session struct {
	Token     string    `db:"token"`
	UserID    string    `db:"user_id"`
	IssuedAt  time.Time `db:"issued_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Expired reports whether the session has passed its stored expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
