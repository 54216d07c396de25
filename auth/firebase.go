package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"taskboard/models"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// IDTokenVerifier is satisfied by *auth.Client from the Firebase Admin SDK.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// UserProvisioner maps a Firebase uid to a local user row.
type UserProvisioner interface {
	FirebaseUser(ctx context.Context, uid, email, displayName string) (*models.User, error)
}

// FirebaseProvider trusts Firebase ID tokens sent as bearer tokens. Sign-up,
// login and logout happen in the Firebase client SDK.
type FirebaseProvider struct {
	verifier IDTokenVerifier
	users    UserProvisioner
}

func NewFirebaseProvider(verifier IDTokenVerifier, users UserProvisioner) *FirebaseProvider {
	return &FirebaseProvider{verifier: verifier, users: users}
}

// NewFirebaseVerifier builds an Admin SDK auth client. credentialsFile may be
// empty to use application default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (IDTokenVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}
	return client, nil
}

func (p *FirebaseProvider) Name() string           { return "firebase" }
func (p *FirebaseProvider) LocalCredentials() bool { return false }

func (p *FirebaseProvider) Authenticate(r *http.Request) (*Identity, error) {
	idToken := BearerToken(r)
	if idToken == "" {
		return nil, ErrUnauthenticated
	}

	ctx := r.Context()
	token, err := p.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	// unverified addresses are not used to match local accounts
	var email string
	if verified, _ := token.Claims["email_verified"].(bool); verified {
		email, _ = token.Claims["email"].(string)
	}
	name, _ := token.Claims["name"].(string)
	user, err := p.users.FirebaseUser(ctx, token.UID, email, name)
	if err != nil {
		return nil, err
	}

	id := &Identity{UserID: user.ID.String(), TokenID: token.UID}
	if token.Expires > 0 {
		id.ExpiresAt = time.Unix(token.Expires, 0)
	}
	return id, nil
}

func (p *FirebaseProvider) Issue(http.ResponseWriter, *http.Request, string) (*Credentials, error) {
	return nil, ErrNotSupported
}

// Revoke is a no-op: the client signs out of Firebase itself.
func (p *FirebaseProvider) Revoke(http.ResponseWriter, *http.Request, *Identity) error {
	return nil
}

func (p *FirebaseProvider) RevokeAll(context.Context, string) error {
	return nil
}
