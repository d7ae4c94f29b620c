package paywall

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/confeitaria/handler"
	"github.com/dmitrymomot/confeitaria/svc/billing"
)

var (
	errInvalidSignature = handler.NewHTTPError(http.StatusBadRequest, "invalid signature")
	errMalformedEvent   = handler.NewHTTPError(http.StatusBadRequest, "malformed event")
	errReturnURL        = handler.NewHTTPError(http.StatusBadRequest, "return URL is not allowed")
	errEmailRequired    = handler.NewHTTPError(http.StatusBadRequest, "email is required")
)

// httpError attaches the status of a billing failure to err.
func httpError(err error) error {
	var httpErr handler.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	var mapped handler.HTTPError
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		mapped = errPaymentsNotConfigured
	case errors.Is(err, billing.ErrInvalidSignature):
		mapped = errInvalidSignature
	case errors.Is(err, billing.ErrMalformedEvent):
		mapped = errMalformedEvent
	case errors.Is(err, billing.ErrReturnURLNotAllowed):
		mapped = errReturnURL
	case errors.Is(err, billing.ErrEmptyEmail):
		mapped = errEmailRequired
	case errors.Is(err, billing.ErrProcessorUnavailable):
		mapped = handler.ErrBadGateway
	default:
		return err
	}
	return errors.Join(mapped, err)
}

func errorHandler(log *slog.Logger) handler.ErrorHandler {
	render := handler.JSONErrorHandler(log)
	return func(ctx handler.Context, err error) {
		render(ctx, httpError(err))
	}
}

// failure hands err to the route's error handler, which logs and renders it.
type failure struct{ err error }

func (f failure) Render(http.ResponseWriter, *http.Request) error { return f.err }

func fail(err error) handler.Response { return failure{err: err} }
