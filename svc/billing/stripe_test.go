package billing_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/confeitaria/svc/billing"
)

// fakeStripe serves the handful of API endpoints the processor uses.
type fakeStripe struct {
	mu       sync.Mutex
	forms    map[string][]map[string]string
	activeOf map[string]bool
}

func newFakeStripe(t *testing.T) (*fakeStripe, *billing.StripeProcessor) {
	t.Helper()
	fs := &fakeStripe{forms: make(map[string][]map[string]string), activeOf: map[string]bool{"cus_paid": true}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/customers", func(w http.ResponseWriter, r *http.Request) {
		fs.record("list_customers", r)
		data := `[]`
		if r.URL.Query().Get("email") == "paid@x.com" {
			data = `[{"id":"cus_gone","object":"customer","deleted":true},{"id":"cus_paid","object":"customer","email":"paid@x.com"}]`
		}
		writeList(w, "/v1/customers", data)
	})
	mux.HandleFunc("POST /v1/customers", func(w http.ResponseWriter, r *http.Request) {
		form := fs.record("create_customer", r)
		fmt.Fprintf(w, `{"id":"cus_new","object":"customer","email":%q}`, form["email"])
	})
	mux.HandleFunc("GET /v1/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id != "cus_paid" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such customer"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"cus_paid","object":"customer","email":"paid@x.com"}`)
	})
	mux.HandleFunc("POST /v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		fs.record("create_session", r)
		fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.test/cs_test_1"}`)
	})
	mux.HandleFunc("GET /v1/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		fs.record("list_subscriptions", r)
		data := `[]`
		if fs.activeOf[r.URL.Query().Get("customer")] {
			data = `[{"id":"sub_1","object":"subscription","status":"active"}]`
		}
		writeList(w, "/v1/subscriptions", data)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := billing.NewStripeProcessor("sk_test_123", billing.WithStripeBackend(srv.URL), billing.WithStripeRetries(0))
	require.NoError(t, err)
	return fs, p
}

func writeList(w http.ResponseWriter, url, data string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"object":"list","data":%s,"has_more":false,"url":%q}`, data, url)
}

func (fs *fakeStripe) record(op string, r *http.Request) map[string]string {
	_ = r.ParseForm()
	form := make(map[string]string, len(r.Form))
	for k, v := range r.Form {
		form[k] = v[0]
	}
	fs.mu.Lock()
	fs.forms[op] = append(fs.forms[op], form)
	fs.mu.Unlock()
	return form
}

func (fs *fakeStripe) last(op string) map[string]string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	calls := fs.forms[op]
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

func TestNewStripeProcessor_NotConfigured(t *testing.T) {
	t.Parallel()
	_, err := billing.NewStripeProcessor("")
	assert.ErrorIs(t, err, billing.ErrNotConfigured)
}

func TestStripeProcessor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("find customers skips deleted", func(t *testing.T) {
		t.Parallel()
		fs, p := newFakeStripe(t)

		refs, err := p.FindCustomers(ctx, "paid@x.com")
		require.NoError(t, err)
		assert.Equal(t, []billing.CustomerRef{{Email: "paid@x.com", CustomerID: "cus_paid"}}, refs)
		assert.Equal(t, "paid@x.com", fs.last("list_customers")["email"])

		refs, err = p.FindCustomers(ctx, "nobody@x.com")
		require.NoError(t, err)
		assert.Empty(t, refs)
	})

	t.Run("create customer", func(t *testing.T) {
		t.Parallel()
		fs, p := newFakeStripe(t)

		ref, err := p.CreateCustomer(ctx, "new@x.com")
		require.NoError(t, err)
		assert.Equal(t, billing.CustomerRef{Email: "new@x.com", CustomerID: "cus_new"}, ref)
		assert.Equal(t, "new@x.com", fs.last("create_customer")["email"])
	})

	t.Run("customer email", func(t *testing.T) {
		t.Parallel()
		_, p := newFakeStripe(t)

		got, err := p.CustomerEmail(ctx, "cus_paid")
		require.NoError(t, err)
		assert.Equal(t, "paid@x.com", got)

		_, err = p.CustomerEmail(ctx, "cus_missing")
		assert.Error(t, err)
	})

	t.Run("checkout session", func(t *testing.T) {
		t.Parallel()
		fs, p := newFakeStripe(t)

		sess, err := p.CreateCheckoutSession(ctx, billing.CheckoutSessionParams{
			CustomerID: "cus_paid",
			PriceID:    "price_123",
			SuccessURL: "https://app.test/?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:  "https://app.test/",
			Email:      "paid@x.com",
		})
		require.NoError(t, err)
		assert.Equal(t, billing.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, sess)

		form := fs.last("create_session")
		assert.Equal(t, "cus_paid", form["customer"])
		assert.Equal(t, "subscription", form["mode"])
		assert.Equal(t, "price_123", form["line_items[0][price]"])
		assert.Equal(t, "1", form["line_items[0][quantity]"])
		assert.Equal(t, "https://app.test/?session_id={CHECKOUT_SESSION_ID}", form["success_url"])
		assert.Equal(t, "true", form["allow_promotion_codes"])
		assert.Equal(t, "required", form["billing_address_collection"])
		assert.Equal(t, "paid@x.com", form["subscription_data[metadata][email]"])
		assert.Equal(t, "paid@x.com", form["metadata[email]"])
	})

	t.Run("active subscription", func(t *testing.T) {
		t.Parallel()
		fs, p := newFakeStripe(t)

		ok, err := p.HasActiveSubscription(ctx, "cus_paid")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "active", fs.last("list_subscriptions")["status"])

		ok, err = p.HasActiveSubscription(ctx, "cus_other")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("query service end to end", func(t *testing.T) {
		t.Parallel()
		_, p := newFakeStripe(t)
		q := billing.NewQueryService(p, billing.NewMemoryStore())

		assert.True(t, q.HasActiveSubscription(ctx, "paid@x.com"))
		assert.False(t, q.HasActiveSubscription(ctx, "nobody@x.com"))
	})
}
