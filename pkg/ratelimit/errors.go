package ratelimit

import "errors"

var (
	ErrInvalidLimit    = errors.New("ratelimit: limit must be positive")
	ErrInvalidInterval = errors.New("ratelimit: interval must be positive")
	ErrInvalidBurst    = errors.New("ratelimit: burst must not be negative")
)
