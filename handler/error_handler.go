package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/confeitaria/pkg/binder"
	"github.com/dmitrymomot/confeitaria/pkg/logger"
	"github.com/dmitrymomot/confeitaria/pkg/requestid"
)

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields []binder.FieldError `json:"fields,omitempty"`
}

// classify maps err to a status code and client-facing message. Unclassified
// errors become 500 without exposing their text.
func classify(err error) (int, string) {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, httpErr.Key
	}

	switch {
	case errors.Is(err, binder.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, binder.ErrBodyTooLarge):
		return ErrRequestTooLarge.Code, ErrRequestTooLarge.Key
	case errors.Is(err, binder.ErrMissingContentType), errors.Is(err, binder.ErrUnsupportedMediaType):
		return ErrUnsupportedMediaType.Code, ErrUnsupportedMediaType.Key
	case errors.Is(err, binder.ErrFailedToParseJSON):
		return http.StatusBadRequest, "invalid JSON body"
	}
	return ErrInternalServerError.Code, ErrInternalServerError.Key
}

func errorBody(err error) (int, ErrorResponse) {
	status, msg := classify(err)
	body := ErrorResponse{Error: msg}
	var verr *binder.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	return status, body
}

// JSONErrorHandler writes errors as {"error": "..."} and logs them, at warn
// level for client errors and error level otherwise.
func JSONErrorHandler(log *slog.Logger) ErrorHandler {
	log = logger.OrDiscard(log)
	return func(ctx Context, err error) {
		status, body := errorBody(err)
		r := ctx.Request()

		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("handler"),
		)

		if renderErr := (jsonResponse{status: status, body: body}).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response", logger.Error(renderErr))
		}
	}
}
