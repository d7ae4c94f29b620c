package billing

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/confeitaria/pkg/metrics"
	"github.com/dmitrymomot/confeitaria/pkg/webhook"
)

// Processor is the payment processor API used by the billing services.
type Processor interface {
	// FindCustomers returns every customer registered with email.
	FindCustomers(ctx context.Context, email string) ([]CustomerRef, error)
	CreateCustomer(ctx context.Context, email string) (CustomerRef, error)
	// CustomerEmail returns the email of a customer, or "" when it has none.
	CustomerEmail(ctx context.Context, customerID string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (CheckoutSession, error)
	HasActiveSubscription(ctx context.Context, customerID string) (bool, error)
}

// CheckoutSessionParams describes a subscription-mode hosted checkout.
type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Email      string
}

// processorCall bounds processor calls with a timeout, a circuit breaker and
// latency metrics. The zero value only applies no limits.
type processorCall struct {
	timeout time.Duration
	breaker *webhook.CircuitBreaker
	metrics *metrics.Billing
}

func (c processorCall) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(func() error { return fn(ctx) })
	} else {
		err = fn(ctx)
	}
	if webhook.IsCircuitOpen(err) {
		return errors.Join(ErrCircuitOpen, ErrProcessorUnavailable)
	}
	c.metrics.ProcessorCall(op, time.Since(start), err)
	if err != nil {
		return errors.Join(ErrProcessorUnavailable, err)
	}
	return nil
}
