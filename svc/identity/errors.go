package identity

import "errors"

var (
	ErrNotConfigured   = errors.New("identity: signing secret is not configured")
	ErrUnauthenticated = errors.New("identity: missing or invalid credentials")
	ErrSessionExpired  = errors.New("identity: session expired")
	ErrSessionRevoked  = errors.New("identity: session signed out")
	ErrMissingEmail    = errors.New("identity: token carries no email")
	ErrMissingSubject  = errors.New("identity: token carries no subject")
)
