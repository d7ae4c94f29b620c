package clientip_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/confeitaria/pkg/clientip"
)

func TestFromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trusted []string
		want    string
	}{
		{name: "remote addr", remote: "203.0.113.7:5123", want: "203.0.113.7"},
		{name: "remote addr without port", remote: "203.0.113.7", want: "203.0.113.7"},
		{
			name:    "untrusted headers ignored",
			remote:  "10.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:    "10.0.0.1",
		},
		{
			name:    "forwarded client behind internal proxy",
			remote:  "10.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.2"},
			trusted: clientip.DefaultHeaders,
			want:    "198.51.100.1",
		},
		{
			name:    "forged forwarded prefix ignored",
			remote:  "10.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.77, 203.0.113.5, 10.0.0.2"},
			trusted: clientip.DefaultHeaders,
			want:    "203.0.113.5",
		},
		{
			name:    "forwarded garbage skipped",
			remote:  "10.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.5, junk"},
			trusted: clientip.DefaultHeaders,
			want:    "203.0.113.5",
		},
		{
			name:    "only internal forwarded hops",
			remote:  "10.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "192.168.1.4, 10.0.0.2"},
			trusted: clientip.DefaultHeaders,
			want:    "10.0.0.2",
		},
		{
			name:   "priority order",
			remote: "10.0.0.1:80",
			headers: map[string]string{
				"CF-Connecting-IP": "198.51.100.9",
				"X-Real-IP":        "198.51.100.3",
			},
			trusted: clientip.DefaultHeaders,
			want:    "198.51.100.9",
		},
		{
			name:    "invalid header falls through",
			remote:  "10.0.0.1:80",
			headers: map[string]string{"CF-Connecting-IP": "nope", "X-Real-IP": "2001:db8::1"},
			trusted: clientip.DefaultHeaders,
			want:    "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientip.FromRequest(r, tt.trusted))
		})
	}
}

func TestFromRequest_RotatingForgedHeader(t *testing.T) {
	t.Parallel()

	forged := []string{"198.51.100.1", "198.51.100.2", "192.0.2.50", "2001:db8::7"}
	for _, f := range forged {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:80"
		r.Header.Set("X-Forwarded-For", f+", 203.0.113.5")
		assert.Equal(t, "203.0.113.5", clientip.FromRequest(r, []string{"X-Forwarded-For"}), f)
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var seen string
	h := clientip.Middleware(clientip.DefaultHeaders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = clientip.FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "198.51.100.4", seen)
}

func TestLogExtractor(t *testing.T) {
	t.Parallel()

	extract := clientip.LogExtractor()
	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(clientip.WithContext(context.Background(), "198.51.100.4"))
	assert.True(t, ok)
	assert.Equal(t, "client_ip", attr.Key)
	assert.Equal(t, "198.51.100.4", attr.Value.String())
}
