package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskboard/models"

	"github.com/jackc/pgx/v5"
)

const userColumns = "id, email, password_hash, display_name, firebase_uid, is_temporary, created_at, last_activity"

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.FirebaseUID, &u.Temporary, &u.CreatedAt, &u.LastActivity)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) EmailInUse(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", normalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("database error checking email: %w", err)
	}
	return exists, nil
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, displayName string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stmt := "INSERT INTO users (email, password_hash, display_name) VALUES ($1, $2, $3) RETURNING " + userColumns
	u, err := scanUser(s.db.QueryRow(ctx, stmt, normalizeEmail(email), passwordHash, displayName))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("error adding user: %w", err)
	}
	return u, nil
}

func (s *Store) CreateTemporaryUser(ctx context.Context) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stmt := "INSERT INTO users (is_temporary, display_name) VALUES (TRUE, 'Guest') RETURNING " + userColumns
	u, err := scanUser(s.db.QueryRow(ctx, stmt))
	if err != nil {
		return nil, fmt.Errorf("error adding temporary user: %w", err)
	}
	return u, nil
}

// UpgradeTemporaryUser turns a guest account into a permanent one, keeping its tasks.
func (s *Store) UpgradeTemporaryUser(ctx context.Context, userID, email, passwordHash, displayName string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stmt := `UPDATE users SET email = $1, password_hash = $2, display_name = $3, is_temporary = FALSE
		WHERE id = $4 AND is_temporary RETURNING ` + userColumns
	u, err := scanUser(s.db.QueryRow(ctx, stmt, normalizeEmail(email), passwordHash, displayName, userID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return scanUser(s.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", userID))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return scanUser(s.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", normalizeEmail(email)))
}

// Authenticate checks an email and password pair against the stored bcrypt hash.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.PasswordHash == nil || !CheckPasswordHash(password, *u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// FirebaseUser returns the local user for a Firebase uid, creating it on first sight.
// A verified email that already belongs to a local account links that account
// to the uid. If the address is linked to another uid the user is created
// without an email.
func (s *Store) FirebaseUser(ctx context.Context, uid, email, displayName string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var emailArg any
	if email != "" {
		emailArg = normalizeEmail(email)
	}
	insert := `INSERT INTO users (firebase_uid, email, display_name) VALUES ($1, $2, $3)
		ON CONFLICT (firebase_uid) DO UPDATE SET last_activity = NOW()
		RETURNING ` + userColumns
	u, err := scanUser(s.db.QueryRow(ctx, insert, uid, emailArg, displayName))
	if isUniqueViolation(err) && emailArg != nil {
		link := `UPDATE users SET firebase_uid = $1, last_activity = NOW()
			WHERE email = $2 AND firebase_uid IS NULL RETURNING ` + userColumns
		u, err = scanUser(s.db.QueryRow(ctx, link, uid, emailArg))
		if errors.Is(err, ErrNotFound) {
			u, err = scanUser(s.db.QueryRow(ctx, insert, uid, nil, displayName))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("error provisioning firebase user: %w", err)
	}
	return u, nil
}

func (s *Store) UpdateDisplayName(ctx context.Context, userID, displayName string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stmt := "UPDATE users SET display_name = $1 WHERE id = $2 RETURNING " + userColumns
	return scanUser(s.db.QueryRow(ctx, stmt, displayName, userID))
}

func (s *Store) ChangePassword(ctx context.Context, email, passwordHash string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stmt := "UPDATE users SET password_hash = $1 WHERE email = $2 RETURNING " + userColumns
	u, err := scanUser(s.db.QueryRow(ctx, stmt, passwordHash, normalizeEmail(email)))
	if err != nil {
		return nil, fmt.Errorf("unable to update user password: %w", err)
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.db.Exec(ctx, "DELETE FROM users WHERE id = $1", userID)
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateLastActivity(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.Exec(ctx, "UPDATE users SET last_activity = NOW() WHERE id = $1", userID)
	if err != nil {
		return fmt.Errorf("error updating last activity: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}
