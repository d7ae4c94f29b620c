package httpserver

import "log/slog"

// Option configures the HTTP server.
type Option func(*Server)

// WithLogger supplies a logger. Nil keeps the discarding default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithShutdownHook registers a callback that runs after the server has stopped
// accepting requests, e.g. to close pools or broadcasters.
func WithShutdownHook(h func()) Option {
	return func(s *Server) {
		if h != nil {
			s.shutdownHooks = append(s.shutdownHooks, h)
		}
	}
}
