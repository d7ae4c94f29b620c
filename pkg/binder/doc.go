// Package binder decodes HTTP request bodies into typed request structs and
// validates them with github.com/go-playground/validator/v10.
//
//	type checkoutRequest struct {
//	    Email     string `json:"email" validate:"required,email"`
//	    ReturnURL string `json:"returnUrl" validate:"required,http_url"`
//	}
//
//	bind := binder.JSON()
//	var req checkoutRequest
//	if err := bind(r, &req); err != nil {
//	    // *binder.ValidationError, ErrFailedToParseJSON, ErrUnsupportedMediaType ...
//	}
//
// Validation failures are reported as *ValidationError whose messages use
// the JSON field names, e.g. "email is required".
package binder
