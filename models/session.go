package models

import "time"

// Session is a server-side login held in Redis by the session provider.
type Session struct {
	Token        string
	UserID       string
	CSRFToken    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
	UserAgent    string
	IPAddress    string
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
