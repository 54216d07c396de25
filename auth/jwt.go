package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskboard/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const TokenCookie = "token"

// TokenStore persists revocations for stateless tokens.
type TokenStore interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	SetNotBefore(ctx context.Context, userID string, t time.Time, ttl time.Duration) error
	NotBefore(ctx context.Context, userID string) (time.Time, error)
}

type Claims struct {
	jwt.RegisteredClaims
	// IssuedAtMs is iat in milliseconds, so a revocation in the same second still applies.
	IssuedAtMs int64 `json:"iat_ms,omitempty"`
}

func (c *Claims) issuedAt() time.Time {
	if c.IssuedAtMs > 0 {
		return time.UnixMilli(c.IssuedAtMs)
	}
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

type JWTProvider struct {
	secret  []byte
	ttl     time.Duration
	secure  bool
	revoked TokenStore
	now     func() time.Time
}

func NewJWTProvider(secret string, ttl time.Duration, secureCookies bool, revoked TokenStore) *JWTProvider {
	return &JWTProvider{
		secret:  []byte(secret),
		ttl:     ttl,
		secure:  secureCookies,
		revoked: revoked,
		now:     time.Now,
	}
}

func (p *JWTProvider) Name() string           { return "jwt" }
func (p *JWTProvider) LocalCredentials() bool { return true }

func (p *JWTProvider) GenerateToken(userID string) (string, *Claims, error) {
	now := p.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		IssuedAtMs: now.UnixMilli(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", nil, fmt.Errorf("error signing token: %w", err)
	}
	return signed, claims, nil
}

func (p *JWTProvider) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// tokenFromRequest prefers the bearer header and falls back to the cookie.
func tokenFromRequest(r *http.Request) string {
	if tok := BearerToken(r); tok != "" {
		return tok
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func (p *JWTProvider) Authenticate(r *http.Request) (*Identity, error) {
	tokenStr := tokenFromRequest(r)
	if tokenStr == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := p.ValidateToken(tokenStr)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	revoked, err := p.revoked.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("error checking token revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token revoked", ErrUnauthenticated)
	}

	notBefore, err := p.revoked.NotBefore(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("error checking token revocation: %w", err)
	}
	if issued := claims.issuedAt(); issued.IsZero() || issued.Before(notBefore) {
		return nil, fmt.Errorf("%w: token issued before credentials changed", ErrUnauthenticated)
	}

	return &Identity{
		UserID:    claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (p *JWTProvider) Issue(w http.ResponseWriter, _ *http.Request, userID string) (*Credentials, error) {
	token, claims, err := p.GenerateToken(userID)
	if err != nil {
		return nil, err
	}
	utils.SetCookie(w, TokenCookie, token, p.ttl, true, p.secure)
	return &Credentials{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (p *JWTProvider) Revoke(w http.ResponseWriter, r *http.Request, id *Identity) error {
	utils.ClearCookie(w, TokenCookie, true, p.secure)
	if id == nil || id.TokenID == "" {
		return nil
	}
	return p.revoked.RevokeToken(r.Context(), id.TokenID, id.ExpiresAt.Sub(p.now()))
}

func (p *JWTProvider) RevokeAll(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("empty user id")
	}
	return p.revoked.SetNotBefore(ctx, userID, p.now(), p.ttl)
}
