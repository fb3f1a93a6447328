package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/friendship-plus/internal/auth"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/repository/sqlstore"
)

const testSecret = "service-test-secret-0123456789"

// testEnv bundles every service over one in-memory SQLite database.
type testEnv struct {
	db        *sqlstore.DB
	tokens    *auth.TokenService
	accounts  *AccountService
	profiles  *ProfileService
	directory *DirectoryService
	logs      *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlstore.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService(testSecret)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return &testEnv{
		db:        db,
		tokens:    tokens,
		accounts:  NewAccountService(db, tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), logger),
		profiles:  NewProfileService(db, logger),
		directory: NewDirectoryService(db, logger),
		logs:      logs,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signupInput builds a valid signup whose email and phone derive from username.
func signupInput(username string) SignupInput {
	return SignupInput{
		Username:  username,
		Password:  "correct horse " + username,
		Email:     username + "@example.com",
		Phone:     "555-" + username,
		FirstName: "First " + username,
		LastName:  "Last",
	}
}

func (e *testEnv) signup(t *testing.T, username string) *model.User {
	t.Helper()
	user, err := e.accounts.Signup(context.Background(), signupInput(username))
	if err != nil {
		t.Fatalf("Signup(%q) error = %v", username, err)
	}
	return user
}

func (e *testEnv) login(t *testing.T, username string) *LoginResult {
	t.Helper()
	in := signupInput(username)
	res, err := e.accounts.Login(context.Background(), LoginInput{Username: in.Username, Password: in.Password})
	if err != nil {
		t.Fatalf("Login(%q) error = %v", username, err)
	}
	return res
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
