// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a Context (the request context plus access to the
// request and response writer) and a request value populated by binders. It
// returns a Response that renders itself. Binding and rendering failures go
// to an ErrorHandler; the default, JSONErrorHandler, maps HTTPError and
// binder errors to status codes and writes {"error": "..."}.
//
//	type checkRequest struct {
//	    Email string `json:"email" validate:"required"`
//	}
//
//	h := func(ctx handler.Context, req checkRequest) handler.Response {
//	    ok := svc.HasActiveSubscription(ctx, req.Email)
//	    return handler.JSON(map[string]bool{"hasActiveSubscription": ok})
//	}
//
//	router.Post("/check-subscription", handler.Wrap(h,
//	    handler.WithBinder[checkRequest](binder.JSON()),
//	))
//
// Decorators wrap the typed handler for cross-cutting concerns such as
// authentication; the first decorator listed is the outermost.
package handler
