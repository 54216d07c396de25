package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskboard/logging"
	"taskboard/models"
	"taskboard/utils"
)

const (
	SessionCookie = "session_token"
	CSRFCookie    = "csrf_token"
	CSRFHeader    = "X-CSRF-Token"
)

// SessionStore is the Redis session persistence the provider needs.
type SessionStore interface {
	StoreSession(ctx context.Context, session models.Session, ttl time.Duration) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	UpdateLastActivity(ctx context.Context, token string) error
	DeleteAllUserSessions(ctx context.Context, userID string) error
}

// SessionProvider authenticates with an opaque session token cookie and
// requires the per-session CSRF token on state-changing requests.
type SessionProvider struct {
	store  SessionStore
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewSessionProvider(store SessionStore, ttl time.Duration, secureCookies bool) *SessionProvider {
	return &SessionProvider{store: store, ttl: ttl, secure: secureCookies, now: time.Now}
}

func (p *SessionProvider) Name() string           { return "session" }
func (p *SessionProvider) LocalCredentials() bool { return true }

func (p *SessionProvider) Authenticate(r *http.Request) (*Identity, error) {
	st, err := r.Cookie(SessionCookie)
	if err != nil || st.Value == "" {
		return nil, ErrUnauthenticated
	}

	ctx := r.Context()
	session, err := p.store.GetSession(ctx, st.Value)
	if errors.Is(err, utils.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: session token does not exist", ErrUnauthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading session: %w", err)
	}
	if session.Expired(p.now()) {
		return nil, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}

	if !safeMethod(r.Method) {
		csrf := r.Header.Get(CSRFHeader)
		if csrf == "" || !utils.ConstantTimeEqual(csrf, session.CSRFToken) {
			return nil, ErrInvalidCSRF
		}
	}

	if err := p.store.UpdateLastActivity(ctx, st.Value); err != nil {
		logging.Logger.Warnf("Event ID: SESSION_ACTIVITY_UPDATE_FAILED, Description: Error updating last activity in Redis: %v", err)
	}

	return &Identity{
		UserID:       session.UserID,
		SessionToken: session.Token,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

func (p *SessionProvider) Issue(w http.ResponseWriter, r *http.Request, userID string) (*Credentials, error) {
	sessionToken, err := utils.GenerateToken(32)
	if err != nil {
		return nil, err
	}
	csrfToken, err := utils.GenerateToken(32)
	if err != nil {
		return nil, err
	}

	now := p.now()
	session := models.Session{
		Token:        sessionToken,
		UserID:       userID,
		CSRFToken:    csrfToken,
		CreatedAt:    now,
		ExpiresAt:    now.Add(p.ttl),
		LastActivity: now,
		UserAgent:    utils.GetUserAgent(r),
		IPAddress:    utils.GetIP(r),
	}
	if err := p.store.StoreSession(r.Context(), session, p.ttl); err != nil {
		return nil, fmt.Errorf("error storing session: %w", err)
	}

	utils.SetCookie(w, SessionCookie, sessionToken, p.ttl, true, p.secure)
	// the browser script echoes this one back in X-CSRF-Token
	utils.SetCookie(w, CSRFCookie, csrfToken, p.ttl, false, p.secure)

	return &Credentials{CSRFToken: csrfToken, ExpiresAt: session.ExpiresAt}, nil
}

func (p *SessionProvider) Revoke(w http.ResponseWriter, r *http.Request, id *Identity) error {
	utils.ClearCookie(w, SessionCookie, true, p.secure)
	utils.ClearCookie(w, CSRFCookie, false, p.secure)
	if id == nil || id.SessionToken == "" {
		return nil
	}
	return p.store.DeleteSession(r.Context(), id.SessionToken)
}

func (p *SessionProvider) RevokeAll(ctx context.Context, userID string) error {
	return p.store.DeleteAllUserSessions(ctx, userID)
}
