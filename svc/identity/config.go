package identity

import "time"

// Config holds the shared secret and claim expectations for identity tokens.
type Config struct {
	JWTSecret string        `env:"IDENTITY_JWT_SECRET"`
	Issuer    string        `env:"IDENTITY_ISSUER"`
	Audience  string        `env:"IDENTITY_AUDIENCE"`
	Leeway    time.Duration `env:"IDENTITY_LEEWAY" envDefault:"30s"`
}
