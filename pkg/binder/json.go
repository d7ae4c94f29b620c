package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// DefaultMaxJSONSize is the default maximum size for JSON request bodies (1MB).
const DefaultMaxJSONSize = 1 << 20

// Bind parses an HTTP request into v.
type Bind func(r *http.Request, v any) error

type jsonConfig struct {
	maxSize   int64
	validator *Validator
}

// JSONOption configures the JSON binder.
type JSONOption func(*jsonConfig)

// WithMaxSize overrides the body size limit. Non-positive values are ignored.
func WithMaxSize(n int64) JSONOption {
	return func(c *jsonConfig) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithValidator replaces the struct validator. Nil disables validation.
func WithValidator(v *Validator) JSONOption {
	return func(c *jsonConfig) { c.validator = v }
}

// JSON creates a binder that decodes an application/json body into v and
// validates the result against its `validate` struct tags. Unknown fields
// are ignored so browser clients can send extra keys.
func JSON(opts ...JSONOption) Bind {
	cfg := &jsonConfig{maxSize: DefaultMaxJSONSize, validator: DefaultValidator()}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(r *http.Request, v any) error {
		ct := r.Header.Get("Content-Type")
		if ct == "" {
			return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
		}
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return fmt.Errorf("%w: got %s, expected application/json", ErrUnsupportedMediaType, ct)
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, cfg.maxSize+1))
		if err != nil {
			return errors.Join(ErrFailedToParseJSON, err)
		}
		if int64(len(body)) > cfg.maxSize {
			return fmt.Errorf("%w: max %d bytes", ErrBodyTooLarge, cfg.maxSize)
		}
		if len(body) == 0 {
			return fmt.Errorf("%w: empty body", ErrFailedToParseJSON)
		}
		if err := json.Unmarshal(body, v); err != nil {
			return errors.Join(ErrFailedToParseJSON, err)
		}

		if cfg.validator == nil {
			return nil
		}
		return cfg.validator.Struct(v)
	}
}
