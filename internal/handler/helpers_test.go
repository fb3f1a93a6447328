package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/friendship-plus/internal/auth"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// asUser stands in for auth.RequireAuth: every request is authenticated as id.
func asUser(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), id)))
		})
	}
}

// serve routes one request through a chi router so URL params resolve.
func serve(t *testing.T, method, pattern string, h http.HandlerFunc, actor string, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	if actor != "" {
		r.Use(asUser(actor))
	}
	r.Method(method, pattern, h)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

// =========================================================================
// FAKE SERVICES
// =========================================================================

type fakeAccounts struct {
	signup func(service.SignupInput) (*model.User, error)
	login  func(service.LoginInput) (*service.LoginResult, error)
	logout func(token string) error
	get    func(actorID, targetID string) (*model.User, error)
	update func(actorID, targetID string, in service.UpdateInput) (*model.User, error)
	delete func(actorID, targetID string) error
	list   func() ([]model.User, error)
}

func (f *fakeAccounts) Signup(_ context.Context, in service.SignupInput) (*model.User, error) {
	return f.signup(in)
}

func (f *fakeAccounts) Login(_ context.Context, in service.LoginInput) (*service.LoginResult, error) {
	return f.login(in)
}

func (f *fakeAccounts) Logout(_ context.Context, token string) error {
	return f.logout(token)
}

func (f *fakeAccounts) Get(_ context.Context, actorID, targetID string) (*model.User, error) {
	return f.get(actorID, targetID)
}

func (f *fakeAccounts) Update(_ context.Context, actorID, targetID string, in service.UpdateInput) (*model.User, error) {
	return f.update(actorID, targetID, in)
}

func (f *fakeAccounts) Delete(_ context.Context, actorID, targetID string) error {
	return f.delete(actorID, targetID)
}

func (f *fakeAccounts) List(context.Context) ([]model.User, error) {
	return f.list()
}

type fakeProfiles struct {
	gotActor  string
	gotTarget string
	gotInput  service.ProfileInput
	gotPic    *model.Picture
	upsertErr error
	profiles  map[string]*model.Profile
}

func (f *fakeProfiles) Upsert(_ context.Context, actorID, targetID string, in service.ProfileInput, pic *model.Picture) (*model.Profile, error) {
	f.gotActor, f.gotTarget, f.gotInput, f.gotPic = actorID, targetID, in, pic
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return &model.Profile{UserID: targetID, Bio: in.Bio, Age: in.Age, Interests: []string{}}, nil
}

func (f *fakeProfiles) Get(_ context.Context, userID string) (*model.Profile, error) {
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return nil, errProfileNotFound
}

type fakeDirectory struct {
	summaries []model.ProfileSummary
	results   []model.SearchResult
	listErr   error
	searched  string
}

func (f *fakeDirectory) ListProfiles(context.Context) ([]model.ProfileSummary, error) {
	return f.summaries, f.listErr
}

func (f *fakeDirectory) Search(_ context.Context, interest string) ([]model.SearchResult, error) {
	f.searched = interest
	return f.results, nil
}
