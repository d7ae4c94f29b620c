package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/confeitaria/pkg/jwt"
)

// Claims is the identity token payload.
type Claims struct {
	jwt.StandardClaims
	Email     string `json:"email"`
	SessionID string `json:"session_id,omitempty"`
}

// Authenticator validates identity tokens.
type Authenticator struct {
	tokens   *jwt.Service
	issuer   string
	audience string
	now      func() time.Time
}

// AuthenticatorOption configures Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithAuthenticatorClock overrides the time source used for expiry checks.
func WithAuthenticatorClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator returns ErrNotConfigured when cfg has no secret.
func NewAuthenticator(cfg Config, opts ...AuthenticatorOption) (*Authenticator, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrNotConfigured
	}

	a := &Authenticator{issuer: cfg.Issuer, audience: cfg.Audience, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}

	tokens, err := jwt.NewFromString(cfg.JWTSecret,
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithClock(a.now),
	)
	if err != nil {
		return nil, err
	}
	a.tokens = tokens
	return a, nil
}

// Authenticate reads the bearer token from r.
func (a *Authenticator) Authenticate(r *http.Request) (Session, error) {
	token, err := jwt.BearerToken(r)
	if err != nil {
		return Session{}, errors.Join(ErrUnauthenticated, err)
	}
	return a.Parse(token)
}

// Parse validates token and converts its claims into a Session. The session
// id is the session_id claim, then jti, then a stable hash of the token.
func (a *Authenticator) Parse(token string) (Session, error) {
	var claims Claims
	if err := a.tokens.Parse(token, &claims); err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return Session{}, errors.Join(ErrUnauthenticated, ErrSessionExpired)
		}
		return Session{}, errors.Join(ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Session{}, errors.Join(ErrUnauthenticated, ErrMissingSubject)
	}
	if claims.Email == "" {
		return Session{}, errors.Join(ErrUnauthenticated, ErrMissingEmail)
	}

	id := claims.SessionID
	if id == "" {
		id = claims.ID
	}
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(token)).String()
	}

	s := Session{ID: id, UserID: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt > 0 {
		s.ExpiresAt = time.Unix(claims.ExpiresAt, 0).UTC()
	}
	return s, nil
}

// Issue signs a token for s. The identity provider owns issuance in
// production; this serves local tooling and tests.
func (a *Authenticator) Issue(s Session) (string, error) {
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:  s.UserID,
			Issuer:   a.issuer,
			Audience: a.audience,
			IssuedAt: a.now().Unix(),
		},
		Email:     s.Email,
		SessionID: s.ID,
	}
	if !s.ExpiresAt.IsZero() {
		claims.ExpiresAt = s.ExpiresAt.Unix()
	}
	return a.tokens.Generate(claims)
}
