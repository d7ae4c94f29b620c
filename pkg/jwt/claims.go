package jwt

import "time"

// StandardClaims holds the registered claims of RFC 7519 section 4.1.
// Zero values mean "not set" and are not validated.
type StandardClaims struct {
	ID        string `json:"jti,omitempty"`
	Subject   string `json:"sub,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	Audience  string `json:"aud,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// ValidAt checks the temporal claims against now, allowing leeway of clock skew.
func (c StandardClaims) ValidAt(now time.Time, leeway time.Duration) error {
	ts := now.Unix()
	skew := int64(leeway / time.Second)

	if c.ExpiresAt > 0 && ts > c.ExpiresAt+skew {
		return ErrExpiredToken
	}
	if c.NotBefore > 0 && ts+skew < c.NotBefore {
		return ErrTokenNotYetValid
	}
	return nil
}

// Registered exposes the embedded standard claims so Parse can validate them
// on any struct that embeds StandardClaims.
func (c StandardClaims) Registered() StandardClaims {
	return c
}

type registeredClaims interface {
	Registered() StandardClaims
}
