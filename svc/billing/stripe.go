package billing

import (
	"context"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// emailMetadataKey carries the account email on subscriptions created by
// checkout so webhooks can be attributed without a customer lookup.
const emailMetadataKey = "email"

// StripeProcessor implements Processor with the Stripe API.
type StripeProcessor struct {
	api *client.API
}

// StripeOption configures StripeProcessor.
type StripeOption func(*stripeConfig)

type stripeConfig struct {
	backendURL string
	httpClient *http.Client
	retries    int64
}

// WithStripeBackend points the client at another API base URL, e.g. stripe-mock.
func WithStripeBackend(url string) StripeOption {
	return func(c *stripeConfig) { c.backendURL = url }
}

// WithStripeHTTPClient sets the HTTP client used for API calls.
func WithStripeHTTPClient(hc *http.Client) StripeOption {
	return func(c *stripeConfig) { c.httpClient = hc }
}

// WithStripeRetries sets the SDK's network retry count.
func WithStripeRetries(n int64) StripeOption {
	return func(c *stripeConfig) { c.retries = n }
}

// NewStripeProcessor creates a Stripe-backed processor. It returns
// ErrNotConfigured when secretKey is empty.
func NewStripeProcessor(secretKey string, opts ...StripeOption) (*StripeProcessor, error) {
	if secretKey == "" {
		return nil, ErrNotConfigured
	}

	cfg := &stripeConfig{retries: 2}
	for _, opt := range opts {
		opt(cfg)
	}

	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.retries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.backendURL != "" {
		backendCfg.URL = stripe.String(cfg.backendURL)
	}
	if cfg.httpClient != nil {
		backendCfg.HTTPClient = cfg.httpClient
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	api := client.New(secretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})
	return &StripeProcessor{api: api}, nil
}

func (p *StripeProcessor) FindCustomers(ctx context.Context, email string) ([]CustomerRef, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var refs []CustomerRef
	it := p.api.Customers.List(params)
	for it.Next() {
		c := it.Customer()
		if c.Deleted {
			continue
		}
		refs = append(refs, CustomerRef{Email: email, CustomerID: c.ID})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, email string) (CustomerRef, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx

	c, err := p.api.Customers.New(params)
	if err != nil {
		return CustomerRef{}, err
	}
	return CustomerRef{Email: email, CustomerID: c.ID}, nil
}

func (p *StripeProcessor) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := p.api.Customers.Get(customerID, params)
	if err != nil {
		return "", err
	}
	if c.Deleted {
		return "", nil
	}
	return c.Email, nil
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, in CheckoutSessionParams) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(in.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(in.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:               stripe.String(in.SuccessURL),
		CancelURL:                stripe.String(in.CancelURL),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
	}
	if in.Email != "" {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{emailMetadataKey: in.Email},
		}
		params.AddMetadata(emailMetadataKey, in.Email)
	}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, err
	}
	return CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProcessor) HasActiveSubscription(ctx context.Context, customerID string) (bool, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := p.api.Subscriptions.List(params)
	if it.Next() {
		return true, nil
	}
	if err := it.Err(); err != nil {
		return false, err
	}
	return false, nil
}
