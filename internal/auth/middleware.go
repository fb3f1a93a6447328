package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// CookieName is the cookie that carries the session token.
const CookieName = "token"

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the values stored here.
type contextKey string

const userIDKey contextKey = "userID"

// SessionChecker reports whether the server still holds a live session row
// for a token. Verify alone cannot see a logout; this lookup can.
type SessionChecker interface {
	SessionActive(ctx context.Context, token string) (bool, error)
}

// RequireAuth is a middleware that enforces authentication on protected
// routes.
//
// The token is taken from the Authorization header or the "token" cookie
// (see TokenFromRequest). Three distinct 401 outcomes are possible:
//   - no token on either path          → "authentication required"
//   - bad signature, issuer or expiry  → "invalid or expired token"
//   - signature fine, session deleted  → "session has been revoked"
//
// On success the userID is stored in the request context.
func RequireAuth(tokens *TokenService, sessions SessionChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := TokenFromRequest(r)
			if !ok {
				writeUnauthorized(w, "authentication required")
				return
			}

			userID, err := tokens.Verify(raw)
			if err != nil {
				logger.Debug("rejected token", slog.String("reason", verifyReason(err)))
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			active, err := sessions.SessionActive(r.Context(), raw)
			if err != nil {
				logger.Error("session lookup failed",
					slog.String("userID", userID),
					slog.String("error", err.Error()),
				)
				writeStatus(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
				return
			}
			if !active {
				writeUnauthorized(w, "session has been revoked")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context. Returns ("", false) outside a RequireAuth-protected route.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID returns a copy of ctx carrying userID, as RequireAuth does.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// TokenFromRequest extracts the session token from r.
//
// Resolution order: "Authorization: Bearer <token>" first, then the "token"
// cookie. The boolean is false when neither carries a value, which callers
// treat as "no credential supplied" rather than "invalid credential".
func TokenFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			if value = strings.TrimSpace(value); value != "" {
				return value, true
			}
		}
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// SessionCookie builds the HttpOnly cookie that carries a session token.
// secure should be true outside local development.
func SessionCookie(value string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearedSessionCookie tells the browser to drop the session cookie.
func ClearedSessionCookie(secure bool) *http.Cookie {
	return SessionCookie("", -1, secure)
}

func verifyReason(err error) string {
	if errors.Is(err, ErrTokenExpired) {
		return "expired"
	}
	return "invalid"
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeStatus(w, http.StatusUnauthorized, "unauthorized", message)
}

func writeStatus(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
