// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// IDs are xid strings generated by the repository. PasswordHash is tagged
// json:"-" so no handler can serialize it, even by accident.
type User struct {
	ID           string     `json:"id"                    db:"id"`
	Username     string     `json:"username"              db:"username"`
	PasswordHash string     `json:"-"                     db:"password_hash"`
	Email        string     `json:"email"                 db:"email"`
	Phone        string     `json:"phone"                 db:"phone"`
	FirstName    string     `json:"firstName"             db:"first_name"`
	LastName     string     `json:"lastName"              db:"last_name"`
	CreatedAt    time.Time  `json:"createdAt"             db:"created_at"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"` // nil until first login
}

// UserSummary is what signup hands back: enough to identify the new account.
type UserSummary struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary projects a User onto a UserSummary.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}
