package identity

import "time"

// Session is an authenticated principal.
type Session struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Expired reports whether the session ended before now. A zero ExpiresAt never expires.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
