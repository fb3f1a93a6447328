// Package repository declares the storage contracts the services depend on.
//
// Services only ever see these interfaces. The concrete implementation lives
// in repository/sqlstore and serves both PostgreSQL and SQLite.
package repository

import (
	"context"
	"time"

	"github.com/sakif/friendship-plus/internal/model"
)

// UserRepository is the credential store.
type UserRepository interface {
	// FindConflicting returns which of username, email and phone already
	// belong to a user other than excludeID, in that fixed order. Empty
	// candidates are not compared; an empty excludeID excludes nobody.
	FindConflicting(ctx context.Context, username, email, phone, excludeID string) ([]string, error)
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Update(ctx context.Context, user *model.User) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// SessionRepository records issued tokens so they can be revoked.
type SessionRepository interface {
	Record(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, token string) (*model.Session, error)
	// Revoke deletes the session row. Revoking an unknown token is not an error.
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	// DeleteExpired removes rows whose expiry is at or before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ProfileRepository stores one profile per user plus its interest set.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	// Insert writes a new row and its interests. It reports false, and
	// writes nothing, when the user already has a profile.
	Insert(ctx context.Context, profile *model.Profile) (bool, error)
	// Update overwrites every column and replaces the interest set.
	Update(ctx context.Context, profile *model.Profile) error
	Delete(ctx context.Context, userID string) error
	// List returns every profile without bio or picture payloads.
	List(ctx context.Context) ([]model.Profile, error)
	// FindByInterest returns profiles whose interest set contains interest,
	// ordered by creation time.
	FindByInterest(ctx context.Context, interest string) ([]model.Profile, error)
}

// Repositories bundles the stores bound to one database handle.
type Repositories struct {
	Users    UserRepository
	Sessions SessionRepository
	Profiles ProfileRepository
}

// Store vends repositories, either on the shared pool or inside a
// transaction.
type Store interface {
	// Repos returns repositories that run each statement on the pool.
	Repos() Repositories
	// WithTx runs fn with repositories bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Ping(ctx context.Context) error
}
