package ratelimit

import (
	"math"
	"net/http"
	"strconv"
)

// KeyFunc derives the limiter key from a request.
type KeyFunc func(r *http.Request) string

// Middleware limits requests per key. Requests with an empty key pass through.
// onLimit writes the rejection; nil writes a plain 429.
func Middleware(l *TokenBucket, key KeyFunc, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	if onLimit == nil {
		onLimit = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res := l.Allow(k)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

			if !res.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
