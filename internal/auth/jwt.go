// Package auth provides session token signing, password hashing and the
// authentication middleware for the API.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. POST /login verifies the password and issues a signed JWT
//  2. The token is recorded server side as a session row
//  3. The client sends it back as "Authorization: Bearer <jwt>" or in the
//     HttpOnly "token" cookie
//  4. RequireAuth verifies the signature and expiry, then checks that the
//     session row still exists (logout deletes it)
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"iss":"friendship-plus","sub":"<userID>","exp":...,"iat":...,"jti":"..."}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	// TokenTTL is the lifetime of every session token.
	TokenTTL = 24 * time.Hour

	issuer = "friendship-plus"
)

var (
	// ErrTokenExpired means the signature was good but "exp" has passed.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens. now is
// swappable so tests can mint tokens in the past.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// IssuedToken is a freshly signed token together with the instants embedded
// in its claims. The session row is recorded with exactly these instants.
type IssuedToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// claims is the JWT payload. "sub" carries the internal user ID and "jti"
// keeps two tokens issued in the same second distinct.
type claims struct {
	jwt.RegisteredClaims
}

// Issue creates and signs a token for userID that expires TokenTTL from now.
//
// NumericDate has one-second resolution, so the returned instants are
// truncated to the second to match what Verify will later decode.
func (s *TokenService) Issue(userID string) (IssuedToken, error) {
	if userID == "" {
		return IssuedToken{}, errors.New("auth: cannot issue a token without a subject")
	}

	now := s.now().UTC().Truncate(time.Second)
	expires := now.Add(TokenTTL)

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: signing token: %w", err)
	}

	return IssuedToken{Value: signed, IssuedAt: now, ExpiresAt: expires}, nil
}

// Verify parses and verifies a JWT string without touching storage.
// Returns the userID stored in the "sub" claim.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid
//   - Token carries "exp" and it is in the future
//   - Issuer is "friendship-plus"
//   - Algorithm is HS256 (blocks "alg":"none" and key confusion)
func (s *TokenService) Verify(tokenStr string) (string, error) {
	c, err := s.parse(tokenStr)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// ExpiresAt returns the embedded expiry of a valid token.
func (s *TokenService) ExpiresAt(tokenStr string) (time.Time, error) {
	c, err := s.parse(tokenStr)
	if err != nil {
		return time.Time{}, err
	}
	return c.ExpiresAt.Time, nil
}

func (s *TokenService) parse(tokenStr string) (*claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrTokenInvalid)
	}

	return c, nil
}
