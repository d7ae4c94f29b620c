package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrymomot/confeitaria/pkg/logger"
	"github.com/dmitrymomot/confeitaria/pkg/metrics"
	"github.com/dmitrymomot/confeitaria/pkg/webhook"
)

// checkoutSessionPlaceholder is substituted by the processor with the
// created session id. It must reach the processor unescaped.
const checkoutSessionPlaceholder = "session_id={CHECKOUT_SESSION_ID}"

// CheckoutService creates hosted checkout sessions for the single plan.
type CheckoutService struct {
	processor      Processor
	cache          CustomerCache
	priceID        string
	allowedOrigins map[string]struct{}
	call           processorCall
	log            *slog.Logger
}

// CheckoutOption configures CheckoutService.
type CheckoutOption func(*CheckoutService)

// WithAllowedOrigins sets the origins (scheme://host[:port]) return URLs may point to.
func WithAllowedOrigins(origins ...string) CheckoutOption {
	return func(s *CheckoutService) {
		for _, o := range origins {
			if o = normalizeOrigin(o); o != "" {
				s.allowedOrigins[o] = struct{}{}
			}
		}
	}
}

func WithCheckoutCache(c CustomerCache) CheckoutOption {
	return func(s *CheckoutService) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithCheckoutBreaker(cb *webhook.CircuitBreaker) CheckoutOption {
	return func(s *CheckoutService) { s.call.breaker = cb }
}

func WithCheckoutMetrics(m *metrics.Billing) CheckoutOption {
	return func(s *CheckoutService) { s.call.metrics = m }
}

func WithCheckoutTimeout(d time.Duration) CheckoutOption {
	return func(s *CheckoutService) { s.call.timeout = d }
}

func WithCheckoutLogger(l *slog.Logger) CheckoutOption {
	return func(s *CheckoutService) { s.log = l }
}

// NewCheckoutService creates the checkout initiator. A nil processor or an
// empty priceID makes every call fail with ErrNotConfigured.
func NewCheckoutService(processor Processor, priceID string, opts ...CheckoutOption) *CheckoutService {
	s := &CheckoutService{
		processor:      processor,
		cache:          NewMemoryCustomerCache(),
		priceID:        priceID,
		allowedOrigins: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrDiscard(s.log).With(logger.Component("billing.checkout"))
	return s
}

// CreateSession finds or creates the processor customer for email and opens a
// subscription checkout that returns to returnURL.
func (s *CheckoutService) CreateSession(ctx context.Context, email, returnURL string) (CheckoutSession, error) {
	if s.processor == nil || s.priceID == "" {
		return CheckoutSession{}, ErrNotConfigured
	}
	if email == "" {
		return CheckoutSession{}, ErrEmptyEmail
	}
	successURL, err := s.successURL(returnURL)
	if err != nil {
		return CheckoutSession{}, err
	}

	customerID, err := s.customer(ctx, email)
	if err != nil {
		return CheckoutSession{}, err
	}

	var session CheckoutSession
	err = s.call.do(ctx, "create_checkout_session", func(ctx context.Context) error {
		var err error
		session, err = s.processor.CreateCheckoutSession(ctx, CheckoutSessionParams{
			CustomerID: customerID,
			PriceID:    s.priceID,
			SuccessURL: successURL,
			CancelURL:  returnURL,
			Email:      email,
		})
		return err
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to create checkout session",
			logger.Email(email), logger.CustomerID(customerID), logger.Error(err))
		return CheckoutSession{}, err
	}

	s.log.InfoContext(ctx, "checkout session created",
		logger.Email(email), logger.CustomerID(customerID), slog.String("checkout_session_id", session.ID))
	return session, nil
}

// customer resolves the customer id: cache, then processor search (first
// match), then creation. Found and created ids are cached so a retried
// checkout reuses the same customer.
func (s *CheckoutService) customer(ctx context.Context, email string) (string, error) {
	id, err := s.cache.CustomerID(ctx, email)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrCustomerNotCached) {
		s.log.WarnContext(ctx, "customer cache lookup failed", logger.Email(email), logger.Error(err))
	}

	var refs []CustomerRef
	err = s.call.do(ctx, "find_customers", func(ctx context.Context) error {
		var err error
		refs, err = s.processor.FindCustomers(ctx, email)
		return err
	})
	if err != nil {
		s.log.ErrorContext(ctx, "customer search failed", logger.Email(email), logger.Error(err))
		return "", err
	}

	var ref CustomerRef
	if len(refs) > 0 {
		ref = refs[0]
	} else {
		err = s.call.do(ctx, "create_customer", func(ctx context.Context) error {
			var err error
			ref, err = s.processor.CreateCustomer(ctx, email)
			return err
		})
		if err != nil {
			s.log.ErrorContext(ctx, "customer creation failed", logger.Email(email), logger.Error(err))
			return "", err
		}
		s.log.InfoContext(ctx, "processor customer created", logger.Email(email), logger.CustomerID(ref.CustomerID))
	}

	if err := s.cache.Remember(ctx, ref); err != nil {
		s.log.WarnContext(ctx, "failed to cache customer reference", logger.Email(email), logger.Error(err))
	}
	return ref.CustomerID, nil
}

// successURL validates returnURL against the allow-list and appends the
// session placeholder, dropping any fragment.
func (s *CheckoutService) successURL(returnURL string) (string, error) {
	u, err := url.Parse(returnURL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: must be an absolute http(s) URL", ErrReturnURLNotAllowed)
	}
	if _, ok := s.allowedOrigins[normalizeOrigin(u.Scheme+"://"+u.Host)]; !ok {
		return "", fmt.Errorf("%w: origin %s://%s", ErrReturnURLNotAllowed, u.Scheme, u.Host)
	}

	base, _, _ := strings.Cut(returnURL, "#")
	switch {
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		return base + checkoutSessionPlaceholder, nil
	case strings.Contains(base, "?"):
		return base + "&" + checkoutSessionPlaceholder, nil
	}
	return base + "?" + checkoutSessionPlaceholder, nil
}

func normalizeOrigin(origin string) string {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
