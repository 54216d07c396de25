// Package auth holds the interchangeable authentication providers: signed
// JWTs, Redis-backed cookie sessions and Firebase ID tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidCSRF     = errors.New("invalid CSRF token")
	ErrNotSupported    = errors.New("operation not supported by this auth provider")
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	// TokenID is the jti of a JWT, SessionToken the opaque session token.
	// Only the field matching the provider is set.
	TokenID      string
	SessionToken string
	ExpiresAt    time.Time
}

// Credentials are returned to the client after a successful login.
type Credentials struct {
	Token     string    `json:"token,omitempty"`
	CSRFToken string    `json:"csrfToken,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Provider interface {
	Name() string
	// LocalCredentials reports whether users register and log in with a password on this server.
	LocalCredentials() bool
	Authenticate(r *http.Request) (*Identity, error)
	Issue(w http.ResponseWriter, r *http.Request, userID string) (*Credentials, error)
	Revoke(w http.ResponseWriter, r *http.Request, id *Identity) error
	// RevokeAll invalidates every credential previously issued to the user.
	RevokeAll(ctx context.Context, userID string) error
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by the auth middleware, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKey{}).(*Identity)
	return id
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
