package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/friendship-plus/internal/auth"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/service"
)

// AccountService is the slice of service.AccountService the HTTP layer uses.
type AccountService interface {
	Signup(ctx context.Context, in service.SignupInput) (*model.User, error)
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	Logout(ctx context.Context, token string) error
	Get(ctx context.Context, actorID, targetID string) (*model.User, error)
	Update(ctx context.Context, actorID, targetID string, in service.UpdateInput) (*model.User, error)
	Delete(ctx context.Context, actorID, targetID string) error
	List(ctx context.Context) ([]model.User, error)
}

// AccountHandler serves signup, login, logout and the /user routes.
type AccountHandler struct {
	accounts     AccountService
	secureCookie bool
	logger       *slog.Logger
}

// NewAccountHandler creates an AccountHandler. secureCookie sets the Secure
// flag on the session cookie and should be true in production.
func NewAccountHandler(accounts AccountService, secureCookie bool, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts:     accounts,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

type signupResponse struct {
	Success bool              `json:"success"`
	User    model.UserSummary `json:"user"`
}

type loginResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type userResponse struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user"`
}

type usersResponse struct {
	Success bool         `json:"success"`
	Users   []model.User `json:"users"`
}

// HandleSignup creates an account.
//
// HTTP: POST /signup
// REQUEST BODY: {"username","password","email","phone","firstName","lastName"}
func (h *AccountHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in service.SignupInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.accounts.Signup(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, signupResponse{Success: true, User: user.Summary()})
}

// HandleLogin exchanges credentials for a session token.
//
// HTTP: POST /login
// REQUEST BODY: {"username": "...", "password": "..."}
//
// The token is returned in the body and also set as the HttpOnly "token"
// cookie; later requests may use either transport.
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.SetCookie(w, auth.SessionCookie(res.Token, int(auth.TokenTTL.Seconds()), h.secureCookie))
	writeJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Message:   "Login successful for user " + res.User.Username,
		UserID:    res.User.ID,
		Username:  res.User.Username,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
	})
}

// HandleLogout revokes the presented token and clears the cookie.
//
// HTTP: POST /logout
//
// The route is public: an expired or already revoked token still logs out
// cleanly. Only a request carrying no token at all is rejected.
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromRequest(r)
	if err := h.accounts.Logout(r.Context(), token); err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.SetCookie(w, auth.ClearedSessionCookie(h.secureCookie))
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out successfully"})
}

// HandleGetUser returns the caller's own account.
//
// HTTP: GET /user/{id}
func (h *AccountHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.accounts.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{Success: true, User: user})
}

// HandleUpdateUser applies a partial update to the caller's account.
//
// HTTP: PUT /user/{id}
// REQUEST BODY: any subset of the signup fields
func (h *AccountHandler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var in service.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.accounts.Update(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{Success: true, User: user})
}

// HandleDeleteUser deletes the caller's account together with its profile
// and sessions.
//
// HTTP: DELETE /user/{id}
func (h *AccountHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.accounts.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.SetCookie(w, auth.ClearedSessionCookie(h.secureCookie))
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "User deleted successfully"})
}

// HandleListUsers returns every account.
//
// HTTP: GET /users
func (h *AccountHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, usersResponse{Success: true, Users: users})
}
