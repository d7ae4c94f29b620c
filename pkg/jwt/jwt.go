package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	HeaderType      = "JWT"
	HeaderAlgorithm = "HS256"
)

// Header represents the JOSE header of a token.
type Header struct {
	Type      string `json:"typ,omitempty"`
	Algorithm string `json:"alg"`
}

// Service signs and verifies HS256 tokens.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	leeway     time.Duration
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIssuer requires parsed tokens to carry iss == issuer.
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

// WithAudience requires parsed tokens to carry aud == audience.
func WithAudience(audience string) Option {
	return func(s *Service) { s.audience = audience }
}

// WithLeeway tolerates clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) Option {
	return func(s *Service) { s.leeway = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service using key for HMAC-SHA256.
func New(key []byte, opts ...Option) (*Service, error) {
	if len(key) == 0 {
		return nil, ErrMissingSigningKey
	}
	s := &Service{signingKey: key, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromString is New for string keys.
func NewFromString(key string, opts ...Option) (*Service, error) {
	return New([]byte(key), opts...)
}

// Generate signs claims, which may be any JSON-serializable value.
func (s *Service) Generate(claims any) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}

	headerJSON, err := json.Marshal(Header{Type: HeaderType, Algorithm: HeaderAlgorithm})
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	payload := encode(headerJSON) + "." + encode(claimsJSON)
	return payload + "." + encode(s.sign(payload)), nil
}

// Parse verifies tokenString and decodes its claims into claims. When claims
// embeds StandardClaims, exp/nbf and the configured issuer and audience are
// enforced.
func (s *Service) Parse(tokenString string, claims any) error {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return ErrInvalidToken
	}

	headerJSON, err := decode(parts[0])
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	if header.Algorithm != HeaderAlgorithm {
		return ErrUnexpectedSigningMethod
	}

	sig, err := decode(parts[2])
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	if !hmac.Equal(sig, s.sign(parts[0]+"."+parts[1])) {
		return ErrInvalidSignature
	}

	claimsJSON, err := decode(parts[1])
	if err != nil {
		return errors.Join(ErrInvalidClaims, err)
	}
	if err := json.Unmarshal(claimsJSON, claims); err != nil {
		return errors.Join(ErrInvalidClaims, err)
	}

	if rc, ok := claims.(registeredClaims); ok {
		std := rc.Registered()
		if err := std.ValidAt(s.now(), s.leeway); err != nil {
			return err
		}
		if s.issuer != "" && std.Issuer != s.issuer {
			return ErrInvalidIssuer
		}
		if s.audience != "" && std.Audience != s.audience {
			return ErrInvalidAudience
		}
	}

	return nil
}

func (s *Service) sign(payload string) []byte {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(payload))
	return h.Sum(nil)
}

func encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
