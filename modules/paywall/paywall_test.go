package paywall_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/confeitaria/modules/paywall"
	"github.com/dmitrymomot/confeitaria/pkg/webhook"
	"github.com/dmitrymomot/confeitaria/svc/billing"
	"github.com/dmitrymomot/confeitaria/svc/identity"
)

const (
	webhookSecret = "whsec_paywall"
	jwtSecret     = "jwt_paywall"
	appOrigin     = "https://app.confeitaria.test"
)

// stubProcessor keys customers by email: customer id is "cus_" + email.
type stubProcessor struct {
	mu     sync.Mutex
	active map[string]bool
	err    error
}

func newStubProcessor() *stubProcessor { return &stubProcessor{active: make(map[string]bool)} }

func (p *stubProcessor) set(email string, active bool) {
	p.mu.Lock()
	p.active[email] = active
	p.mu.Unlock()
}

func (p *stubProcessor) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *stubProcessor) FindCustomers(_ context.Context, email string) ([]billing.CustomerRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if _, ok := p.active[email]; !ok {
		return nil, nil
	}
	return []billing.CustomerRef{{Email: email, CustomerID: "cus_" + email}}, nil
}

func (p *stubProcessor) CreateCustomer(_ context.Context, email string) (billing.CustomerRef, error) {
	p.set(email, false)
	return billing.CustomerRef{Email: email, CustomerID: "cus_" + email}, nil
}

func (p *stubProcessor) CustomerEmail(_ context.Context, id string) (string, error) {
	return strings.TrimPrefix(id, "cus_"), nil
}

func (p *stubProcessor) CreateCheckoutSession(_ context.Context, _ billing.CheckoutSessionParams) (billing.CheckoutSession, error) {
	return billing.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
}

func (p *stubProcessor) HasActiveSubscription(_ context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return false, p.err
	}
	return p.active[strings.TrimPrefix(id, "cus_")], nil
}

type env struct {
	srv      *httptest.Server
	store    *billing.MemoryStore
	proc     *stubProcessor
	auth     *identity.Authenticator
	sessions *identity.Manager
}

type envOption func(*envConfig)

type envConfig struct {
	cfg           paywall.Config
	webhookSecret string
	noProcessor   bool
}

func withRequireSession() envOption {
	return func(c *envConfig) { c.cfg.RequireSession = true }
}

func withRateLimit(limit, burst int) envOption {
	return func(c *envConfig) {
		c.cfg.RateLimit, c.cfg.RateBurst = limit, burst
		c.cfg.TrustedProxyHeaders = []string{"X-Real-IP"}
	}
}

func withoutProcessor() envOption {
	return func(c *envConfig) { c.noProcessor = true }
}

func withoutWebhookSecret() envOption {
	return func(c *envConfig) { c.webhookSecret = "" }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	ec := &envConfig{
		cfg: paywall.Config{
			AllowedOrigins: []string{appOrigin},
			PublishableKey: "pk_test_1",
			FunctionsURL:   "https://functions.test",
			AppPath:        "/app",
			LoginPath:      "/login",
			PaywallPath:    "/subscribe",
		},
		webhookSecret: webhookSecret,
	}
	for _, opt := range opts {
		opt(ec)
	}

	e := &env{store: billing.NewMemoryStore(), proc: newStubProcessor()}

	var proc billing.Processor = e.proc
	priceID := "price_1"
	if ec.noProcessor {
		proc, priceID = nil, ""
	}

	query := billing.NewQueryService(proc, e.store)
	gate := billing.NewGate(e.store, query,
		billing.WithPolling(webhook.FixedBackoff{Interval: 5 * time.Millisecond}, 30*time.Millisecond))
	webhooks := billing.NewWebhookService(webhook.NewVerifier(ec.webhookSecret), billing.NewNormalizer(), e.store)
	checkout := billing.NewCheckoutService(proc, priceID, billing.WithAllowedOrigins(ec.cfg.AllowedOrigins...))

	var err error
	e.auth, err = identity.NewAuthenticator(identity.Config{JWTSecret: jwtSecret})
	require.NoError(t, err)
	e.sessions = identity.NewManager()
	t.Cleanup(func() { _ = e.sessions.Close() })

	e.srv = httptest.NewServer(paywall.Router(paywall.Options{
		Config:   ec.cfg,
		Webhooks: webhooks,
		Checkout: checkout,
		Query:    query,
		Gate:     gate,
		Auth:     e.auth,
		Sessions: e.sessions,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "# metrics")
		}),
	}))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) token(t *testing.T, email string) string {
	t.Helper()
	tok, err := e.auth.Issue(identity.Session{ID: "sess_" + email, UserID: "user_" + email, Email: email})
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path string, body any, header map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case []byte:
		rdr = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func checkoutEvent(id, email string, at time.Time) []byte {
	return fmt.Appendf(nil,
		`{"id":%q,"object":"event","type":"checkout.session.completed","created":%d,"data":{"object":{"id":"cs_1","object":"checkout.session","customer":"cus_1","customer_email":%q}}}`,
		id, at.Unix(), email)
}

func TestWebhook(t *testing.T) {
	t.Parallel()

	t.Run("valid event is persisted", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		payload := checkoutEvent("evt_1", "baker@x.com", time.Now())
		sig, err := webhook.Sign(webhookSecret, payload, time.Now())
		require.NoError(t, err)

		resp, body := e.do(t, http.MethodPost, "/webhook", payload, map[string]string{"Stripe-Signature": sig})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]any{"received": true}, body)

		rec, err := e.store.Get(context.Background(), "baker@x.com")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, rec.Status)
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		resp, body := e.do(t, http.MethodPost, "/webhook", checkoutEvent("evt_1", "a@x.com", time.Now()), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid signature", body["error"])

		rec, err := e.store.Get(context.Background(), "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusUnknown, rec.Status)
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		payload := []byte(`{"id":`)
		sig, err := webhook.Sign(webhookSecret, payload, time.Now())
		require.NoError(t, err)
		resp, _ := e.do(t, http.MethodPost, "/webhook", payload, map[string]string{"Stripe-Signature": sig})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("secret not configured", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, withoutWebhookSecret())
		payload := checkoutEvent("evt_1", "a@x.com", time.Now())
		sig, err := webhook.Sign(webhookSecret, payload, time.Now())
		require.NoError(t, err)
		resp, _ := e.do(t, http.MethodPost, "/webhook", payload, map[string]string{"Stripe-Signature": sig})
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("body too large", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		payload := bytes.Repeat([]byte("a"), 1<<20+1)
		resp, _ := e.do(t, http.MethodPost, "/webhook", payload, map[string]string{"Stripe-Signature": "t=1,v1=00"})
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

func TestCreateCheckout(t *testing.T) {
	t.Parallel()

	valid := map[string]string{"email": "baker@x.com", "returnUrl": appOrigin + "/subscribe"}

	t.Run("creates session", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		resp, body := e.do(t, http.MethodPost, "/create-checkout", valid, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "cs_test_1", body["sessionId"])
		assert.Equal(t, "https://checkout.test/cs_test_1", body["url"])
	})

	tests := []struct {
		name   string
		opts   []envOption
		body   map[string]string
		token  string
		status int
	}{
		{"missing email", nil, map[string]string{"returnUrl": appOrigin}, "", http.StatusBadRequest},
		{"foreign return url", nil, map[string]string{"email": "a@x.com", "returnUrl": "https://evil.test/"}, "", http.StatusBadRequest},
		{"not configured", []envOption{withoutProcessor()}, valid, "", http.StatusInternalServerError},
		{"session required", []envOption{withRequireSession()}, valid, "", http.StatusUnauthorized},
		{"other account", []envOption{withRequireSession()}, valid, "someone@x.com", http.StatusForbidden},
		{"own account", []envOption{withRequireSession()}, valid, "baker@x.com", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t, tt.opts...)
			header := map[string]string{}
			if tt.token != "" {
				header["Authorization"] = "Bearer " + e.token(t, tt.token)
			}
			resp, body := e.do(t, http.MethodPost, "/create-checkout", tt.body, header)
			assert.Equal(t, tt.status, resp.StatusCode, body)
			if tt.status != http.StatusOK {
				assert.NotEmpty(t, body["error"])
			}
		})
	}

	t.Run("processor down", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.proc.fail(fmt.Errorf("connection reset"))
		resp, body := e.do(t, http.MethodPost, "/create-checkout", valid, nil)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, "upstream unavailable, try again", body["error"])
	})
}

func TestCheckSubscription(t *testing.T) {
	t.Parallel()

	t.Run("reports entitlement", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.proc.set("paid@x.com", true)
		e.proc.set("free@x.com", false)

		_, body := e.do(t, http.MethodPost, "/check-subscription", map[string]string{"email": "paid@x.com"}, nil)
		assert.Equal(t, true, body["hasActiveSubscription"])

		_, body = e.do(t, http.MethodPost, "/check-subscription", map[string]string{"email": "free@x.com"}, nil)
		assert.Equal(t, false, body["hasActiveSubscription"])

		_, body = e.do(t, http.MethodPost, "/check-subscription", map[string]string{"email": "nobody@x.com"}, nil)
		assert.Equal(t, false, body["hasActiveSubscription"])
	})

	t.Run("processor errors deny", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.proc.set("paid@x.com", true)
		e.proc.fail(fmt.Errorf("timeout"))

		resp, body := e.do(t, http.MethodPost, "/check-subscription", map[string]string{"email": "paid@x.com"}, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["hasActiveSubscription"])
	})

	t.Run("missing email", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		resp, _ := e.do(t, http.MethodPost, "/check-subscription", map[string]string{}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, withoutProcessor())
		resp, body := e.do(t, http.MethodPost, "/check-subscription", map[string]string{"email": "a@x.com"}, nil)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, false, body["hasActiveSubscription"])
		assert.NotEmpty(t, body["error"])
	})
}

func TestCheckSubscription_RateLimited(t *testing.T) {
	t.Parallel()

	e := newEnv(t, withRateLimit(1, 2))
	body := map[string]string{"email": "a@x.com"}
	from := func(ip string) map[string]string { return map[string]string{"X-Real-IP": ip} }

	for range 2 {
		resp, _ := e.do(t, http.MethodPost, "/check-subscription", body, from("198.51.100.1"))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, out := e.do(t, http.MethodPost, "/check-subscription", body, from("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.NotEmpty(t, out["error"])

	resp, _ = e.do(t, http.MethodPost, "/check-subscription", body, from("198.51.100.2"))
	assert.Equal(t, http.StatusOK, resp.StatusCode, "other clients keep their own budget")

	resp, _ = e.do(t, http.MethodPost, "/create-checkout",
		map[string]string{"email": "a@x.com", "returnUrl": appOrigin + "/done"}, from("198.51.100.1"))
	assert.Equal(t, http.StatusOK, resp.StatusCode, "routes are limited independently")
}

func TestAccess(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	_, err := e.store.Upsert(ctx, "paid@x.com", billing.StatusActive, time.Now())
	require.NoError(t, err)
	_, err = e.store.Upsert(ctx, "lapsed@x.com", billing.StatusInactive, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		query    string
		decision string
		location string
	}{
		{"anonymous", "", "", "redirect_to_login", "/login"},
		{"subscribed", "paid@x.com", "", "admit", "/app"},
		{"lapsed", "lapsed@x.com", "", "redirect_to_paywall", "/subscribe"},
		{"returning from checkout", "lapsed@x.com", "?session_id=cs_test_1", "pending", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			header := map[string]string{}
			if tt.email != "" {
				header["Authorization"] = "Bearer " + e.token(t, tt.email)
			}
			resp, body := e.do(t, http.MethodGet, "/access"+tt.query, nil, header)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.decision, body["decision"])
			if tt.location == "" {
				assert.NotContains(t, body, "location")
			} else {
				assert.Equal(t, tt.location, body["location"])
			}
		})
	}
}

func TestAccess_LiveCheckAdmitsNewSubscriber(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.proc.set("new@x.com", true)

	resp, body := e.do(t, http.MethodGet, "/access?session_id=cs_test_1", nil,
		map[string]string{"Authorization": "Bearer " + e.token(t, "new@x.com")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admit", body["decision"])
}

func TestLogout(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := e.sessions.Subscribe(ctx)

	resp, _ := e.do(t, http.MethodPost, "/logout", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err := e.store.Upsert(ctx, "a@x.com", billing.StatusActive, time.Now())
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + e.token(t, "a@x.com")}

	resp, body := e.do(t, http.MethodGet, "/access", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admit", body["decision"])

	resp, _ = e.do(t, http.MethodPost, "/logout", nil, auth)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/access", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "redirect_to_login", body["decision"], "signed out token no longer admits")

	resp, _ = e.do(t, http.MethodPost, "/logout", nil, auth)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var kinds []identity.ChangeKind
	for range 2 {
		select {
		case msg := <-sub.Receive():
			kinds = append(kinds, msg.Data.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for session change")
		}
	}
	assert.Equal(t, []identity.ChangeKind{identity.SignedIn, identity.SignedOut}, kinds)

	select {
	case msg := <-sub.Receive():
		t.Fatalf("unexpected session change %v", msg.Data.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientConfigAndProbes(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	resp, body := e.do(t, http.MethodGet, "/config", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"publishableKey": "pk_test_1", "functionsUrl": "https://functions.test"}, body)

	resp, body = e.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alive", body["status"])

	resp, _ = e.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, e.srv.URL+"/create-checkout", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := e.srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := preflight(appOrigin)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, appOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "stripe-signature")
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")

	resp = preflight("https://evil.test")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Methods"))
}
