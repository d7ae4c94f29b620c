package binder

import "errors"

var (
	ErrMissingContentType   = errors.New("missing content type")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrFailedToParseJSON    = errors.New("failed to parse JSON")
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrValidation           = errors.New("validation failed")
)
