// Package service contains the business rules of the application.
//
// Handlers parse HTTP and call services; services validate input, enforce
// ownership and run every multi-table change inside one repository.Store
// transaction. Services return apperror values and never know about HTTP.
//
//	Handler (HTTP) → Service (rules, transactions) → repository.Store (SQL)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/friendship-plus/internal/apperror"
	"github.com/sakif/friendship-plus/internal/auth"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/repository"
)

// compile-time check that *AccountService can back auth.RequireAuth
var _ auth.SessionChecker = (*AccountService)(nil)

// SignupInput is the signup request body. All six fields are required.
type SignupInput struct {
	Username  string `json:"username"  validate:"notblank,max=50"`
	Password  string `json:"password"  validate:"notblank"`
	Email     string `json:"email"     validate:"notblank,email,max=255"`
	Phone     string `json:"phone"     validate:"notblank,max=32"`
	FirstName string `json:"firstName" validate:"notblank,max=100"`
	LastName  string `json:"lastName"  validate:"notblank,max=100"`
}

// LoginInput is the login request body.
type LoginInput struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"notblank"`
}

// UpdateInput is a partial account update. A nil field leaves the stored
// value unchanged; a supplied one must be non-blank.
type UpdateInput struct {
	Username  *string `json:"username"  validate:"omitnil,notblank,max=50"`
	Password  *string `json:"password"  validate:"omitnil,notblank"`
	Email     *string `json:"email"     validate:"omitnil,notblank,email,max=255"`
	Phone     *string `json:"phone"     validate:"omitnil,notblank,max=32"`
	FirstName *string `json:"firstName" validate:"omitnil,notblank,max=100"`
	LastName  *string `json:"lastName"  validate:"omitnil,notblank,max=100"`
}

// LoginResult is what a successful login hands to the handler, which
// delivers Token both in the body and as the session cookie.
type LoginResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// AccountService runs the account lifecycle: signup, login, logout, and
// owner-only read, update and delete.
type AccountService struct {
	store     repository.Store
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	now       func() time.Time
}

// NewAccountService wires an AccountService. Call it once in server.New.
func NewAccountService(
	store repository.Store,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		store:     store,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		now:       time.Now,
	}
}

// Signup validates the input, hashes the password and creates the user in
// one transaction that first screens username, email and phone against
// every other account.
//
// A concurrent signup can slip past the screen; the unique constraints then
// reject the insert and the repository reports the same conflict error.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := validateInput(in); err != nil {
		return nil, err
	}

	// bcrypt is slow; keep it outside the transaction.
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     in.Username,
		PasswordHash: hash,
		Email:        in.Email,
		Phone:        in.Phone,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		fields, err := repos.Users.FindConflicting(ctx, user.Username, user.Email, user.Phone, "")
		if err != nil {
			return err
		}
		if len(fields) > 0 {
			return apperror.Conflict(fields...)
		}
		return repos.Users.Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Info("signup rejected",
				slog.String("username", user.Username),
				slog.Any("fields", apperror.ConflictFields(err)),
			)
			return nil, err
		}
		s.logger.Error("signup failed",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/account: creating user %q: %w", user.Username, err)
	}

	s.logger.Info("user signed up",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login verifies the credentials, then records the login time, issues a
// token and stores its session row in one transaction.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validateInput(in); err != nil {
		return nil, apperror.ValidationFailed("", "Username and password are required")
	}

	user, err := s.verifyCredentials(ctx, in.Username, in.Password)
	if err != nil {
		return nil, err
	}

	var issued auth.IssuedToken
	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		issued, err = s.tokens.Issue(user.ID)
		if err != nil {
			return err
		}
		if err := repos.Users.TouchLastLogin(ctx, user.ID, issued.IssuedAt); err != nil {
			return err
		}
		return repos.Sessions.Record(ctx, &model.Session{
			Token:     issued.Value,
			UserID:    user.ID,
			IssuedAt:  issued.IssuedAt,
			ExpiresAt: issued.ExpiresAt,
		})
	})
	if err != nil {
		// The account vanished between the password check and the write.
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalidCredentials()
		}
		s.logger.Error("login failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/account: logging in user %s: %w", user.ID, err)
	}

	lastLogin := issued.IssuedAt
	user.LastLoginAt = &lastLogin

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.Time("expiresAt", issued.ExpiresAt),
	)
	return &LoginResult{User: user, Token: issued.Value, ExpiresAt: issued.ExpiresAt}, nil
}

// verifyCredentials looks the user up by username only and compares the
// password in constant time. Unknown usernames burn the same bcrypt work
// against a dummy hash, and both failures produce one generic error.
func (s *AccountService) verifyCredentials(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.store.Repos().Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.passwords.VerifyAgainstDummy(password)
			return nil, invalidCredentials()
		}
		return nil, fmt.Errorf("service/account: looking up credentials: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, invalidCredentials()
		}
		s.logger.Error("stored password hash unusable",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/account: verifying password for %s: %w", user.ID, err)
	}
	return user, nil
}

// Logout deletes the session row for token. Unknown, expired and already
// revoked tokens all succeed.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperror.ValidationFailed("token", "No token provided")
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Sessions.Revoke(ctx, token)
	})
	if err != nil {
		return fmt.Errorf("service/account: revoking session: %w", err)
	}

	s.logger.Info("session revoked")
	return nil
}

// SessionActive reports whether token still has a live session row. It
// implements auth.SessionChecker, turning logout into real revocation.
func (s *AccountService) SessionActive(ctx context.Context, token string) (bool, error) {
	sess, err := s.store.Repos().Sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("service/account: checking session: %w", err)
	}
	return !sess.Expired(s.now()), nil
}

// Get returns the actor's own account.
func (s *AccountService) Get(ctx context.Context, actorID, targetID string) (*model.User, error) {
	if actorID != targetID {
		return nil, apperror.Forbidden("Unauthorized to view this user")
	}

	user, err := s.store.Repos().Users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, userNotFound()
		}
		return nil, fmt.Errorf("service/account: getting user %s: %w", targetID, err)
	}
	return user, nil
}

// Update applies the supplied fields over the stored account. Changed
// identity fields are screened against every other account first.
func (s *AccountService) Update(ctx context.Context, actorID, targetID string, in UpdateInput) (*model.User, error) {
	if actorID != targetID {
		return nil, apperror.Forbidden("Unauthorized to modify this user")
	}

	trimPtr(in.Username)
	trimPtr(in.Email)
	trimPtr(in.Phone)
	trimPtr(in.FirstName)
	trimPtr(in.LastName)

	if err := validateInput(in); err != nil {
		return nil, err
	}

	var newHash string
	if in.Password != nil {
		hash, err := s.hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		newHash = hash
	}

	var user *model.User
	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		user, err = repos.Users.GetByID(ctx, targetID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return userNotFound()
			}
			return err
		}

		fields, err := repos.Users.FindConflicting(ctx,
			deref(in.Username), deref(in.Email), deref(in.Phone), targetID)
		if err != nil {
			return err
		}
		if len(fields) > 0 {
			return apperror.Conflict(fields...)
		}

		applyString(&user.Username, in.Username)
		applyString(&user.Email, in.Email)
		applyString(&user.Phone, in.Phone)
		applyString(&user.FirstName, in.FirstName)
		applyString(&user.LastName, in.LastName)
		if newHash != "" {
			user.PasswordHash = newHash
		}

		return repos.Users.Update(ctx, user)
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		s.logger.Error("user update failed",
			slog.String("userID", targetID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/account: updating user %s: %w", targetID, err)
	}

	s.logger.Info("user updated", slog.String("userID", user.ID))
	return user, nil
}

// Delete removes the actor's profile, then every session, then the user
// row, in one transaction.
func (s *AccountService) Delete(ctx context.Context, actorID, targetID string) error {
	if actorID != targetID {
		return apperror.Forbidden("Unauthorized to delete this user")
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Profiles.Delete(ctx, targetID); err != nil {
			return err
		}
		if err := repos.Sessions.RevokeAllForUser(ctx, targetID); err != nil {
			return err
		}
		if err := repos.Users.Delete(ctx, targetID); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return userNotFound()
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		s.logger.Error("user delete failed",
			slog.String("userID", targetID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/account: deleting user %s: %w", targetID, err)
	}

	s.logger.Info("user deleted", slog.String("userID", targetID))
	return nil
}

// List returns every account. An empty store is reported as NotFound.
func (s *AccountService) List(ctx context.Context) ([]model.User, error) {
	users, err := s.store.Repos().Users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/account: listing users: %w", err)
	}
	if len(users) == 0 {
		return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "No users found"}
	}
	return users, nil
}

func (s *AccountService) hashPassword(plaintext string) (string, error) {
	hash, err := s.passwords.Hash(plaintext)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperror.ValidationFailed("password",
				fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
		}
		return "", fmt.Errorf("service/account: hashing password: %w", err)
	}
	return hash, nil
}

func invalidCredentials() error {
	return apperror.Unauthorized("Invalid username or password")
}

func userNotFound() error {
	return &apperror.AppError{Err: apperror.ErrNotFound, Message: "User not found"}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
