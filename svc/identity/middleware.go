package identity

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/confeitaria/pkg/jwt"
	"github.com/dmitrymomot/confeitaria/pkg/logger"
)

// Middleware attaches the caller's session to the request context when a
// valid bearer token is present. Requests without one, or whose session was
// signed out, pass through unauthenticated; handlers decide what that means.
// A nil authenticator leaves every request unauthenticated.
func Middleware(auth *Authenticator, mgr *Manager, log *slog.Logger) func(http.Handler) http.Handler {
	log = logger.OrDiscard(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				next.ServeHTTP(w, r)
				return
			}

			s, err := auth.Authenticate(r)
			if err != nil {
				if !errors.Is(err, jwt.ErrMissingToken) {
					log.DebugContext(r.Context(), "rejected identity token", logger.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}

			if mgr != nil {
				err := mgr.Touch(r.Context(), s)
				switch {
				case errors.Is(err, ErrSessionRevoked), errors.Is(err, ErrSessionExpired):
					log.DebugContext(r.Context(), "session no longer valid", logger.SessionID(s.ID), logger.Error(err))
					next.ServeHTTP(w, r)
					return
				case err != nil:
					log.DebugContext(r.Context(), "session not tracked", logger.SessionID(s.ID), logger.Error(err))
				}
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
