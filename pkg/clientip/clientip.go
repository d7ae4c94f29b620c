// Package clientip resolves the caller address of an HTTP request, honoring
// proxy headers only when they are explicitly trusted.
package clientip

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/dmitrymomot/confeitaria/pkg/logger"
)

// DefaultHeaders lists the proxy headers consulted, in priority order, when a
// deployment sits behind Cloudflare or a standard reverse proxy.
var DefaultHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// FromRequest returns the first valid address found in the trusted headers,
// falling back to RemoteAddr.
//
// X-Forwarded-For is read right to left, since clients control everything
// left of what the proxies appended. The rightmost public address wins; with
// none, the rightmost valid entry does. Prefer single-hop headers such as
// CF-Connecting-IP or X-Real-IP when the proxy sets them.
func FromRequest(r *http.Request, trusted []string) string {
	for _, h := range trusted {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		var ip string
		if strings.EqualFold(h, "X-Forwarded-For") {
			ip = forwardedFor(v)
		} else {
			ip = parse(v)
		}
		if ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return parse(host)
}

func forwardedFor(v string) string {
	hops := strings.Split(v, ",")
	fallback := ""
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			continue
		}
		if !internal(ip) {
			return ip.String()
		}
		if fallback == "" {
			fallback = ip.String()
		}
	}
	return fallback
}

func internal(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

func parse(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}

type contextKey struct{}

func WithContext(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKey{}, ip)
}

// FromContext returns the address stored by Middleware or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(contextKey{}).(string)
	return ip
}

// Middleware stores the resolved client address in the request context.
func Middleware(trusted []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := FromRequest(r, trusted)
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ip)))
		})
	}
}

// LogExtractor adds client_ip to log records written with a request context.
func LogExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if ip := FromContext(ctx); ip != "" {
			return logger.ClientIP(ip), true
		}
		return slog.Attr{}, false
	}
}
