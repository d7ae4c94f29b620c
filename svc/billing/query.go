package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/confeitaria/pkg/logger"
	"github.com/dmitrymomot/confeitaria/pkg/metrics"
	"github.com/dmitrymomot/confeitaria/pkg/webhook"
)

// QueryService answers entitlement questions from the processor directly.
type QueryService struct {
	processor    Processor
	store        Store
	call         processorCall
	metrics      *metrics.Billing
	storeTimeout time.Duration
	margin       time.Duration
	now          func() time.Time
	log          *slog.Logger
}

// DefaultReconcileMargin is how far behind the local clock reconciled
// answers are stamped.
const DefaultReconcileMargin = time.Minute

// QueryOption configures QueryService.
type QueryOption func(*QueryService)

// WithQueryBreaker routes processor calls through cb. While cb is open the
// service answers not-entitled without calling the processor.
func WithQueryBreaker(cb *webhook.CircuitBreaker) QueryOption {
	return func(s *QueryService) { s.call.breaker = cb }
}

func WithQueryTimeout(d time.Duration) QueryOption {
	return func(s *QueryService) { s.call.timeout = d }
}

func WithQueryStoreTimeout(d time.Duration) QueryOption {
	return func(s *QueryService) { s.storeTimeout = d }
}

func WithQueryMetrics(m *metrics.Billing) QueryOption {
	return func(s *QueryService) {
		s.metrics = m
		s.call.metrics = m
	}
}

func WithQueryClock(now func() time.Time) QueryOption {
	return func(s *QueryService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReconcileMargin stamps reconciled writes d before the current second,
// so a processor event created within d of the check still applies over them.
func WithReconcileMargin(d time.Duration) QueryOption {
	return func(s *QueryService) {
		if d >= 0 {
			s.margin = d
		}
	}
}

func WithQueryLogger(l *slog.Logger) QueryOption {
	return func(s *QueryService) { s.log = l }
}

// NewQueryService creates the live entitlement query. A nil processor makes
// Check fail with ErrNotConfigured; a nil store disables Reconcile writes.
func NewQueryService(processor Processor, store Store, opts ...QueryOption) *QueryService {
	s := &QueryService{processor: processor, store: store, margin: DefaultReconcileMargin, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrDiscard(s.log).With(logger.Component("billing.query"))
	return s
}

// Configured reports whether a processor is available for live checks.
func (s *QueryService) Configured() bool { return s.processor != nil }

// Check reports whether any processor customer with email has an active
// subscription. An active subscription found anywhere wins; otherwise any
// processor error makes the answer indefinite and is returned.
func (s *QueryService) Check(ctx context.Context, email string) (bool, error) {
	if s.processor == nil {
		return false, ErrNotConfigured
	}
	if email == "" {
		return false, ErrEmptyEmail
	}

	var refs []CustomerRef
	err := s.call.do(ctx, "find_customers", func(ctx context.Context) error {
		var err error
		refs, err = s.processor.FindCustomers(ctx, email)
		return err
	})
	if err != nil {
		return false, err
	}

	var errs []error
	for _, ref := range refs {
		var active bool
		err := s.call.do(ctx, "list_active_subscriptions", func(ctx context.Context) error {
			var err error
			active, err = s.processor.HasActiveSubscription(ctx, ref.CustomerID)
			return err
		})
		if err != nil {
			s.log.WarnContext(ctx, "subscription lookup failed",
				logger.Email(email), logger.CustomerID(ref.CustomerID), logger.Error(err))
			errs = append(errs, err)
			continue
		}
		if active {
			return true, nil
		}
	}
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}
	return false, nil
}

// HasActiveSubscription is the fail-closed form of Check: every error is
// logged and answered with false.
func (s *QueryService) HasActiveSubscription(ctx context.Context, email string) bool {
	ok, err := s.Check(ctx, email)
	if err != nil {
		s.log.WarnContext(ctx, "entitlement check failed, denying", logger.Email(email), logger.Error(err))
		ok = false
	}
	s.metrics.EntitlementChecked(string(SourceLive), ok)
	return ok
}

// Reconcile runs Check and, on a definitive answer, writes it to the store.
// The write is stamped at the current whole second minus the reconcile
// margin: processor events carry second-resolution times from another
// clock, and one created around the check must win over the live answer.
// Store failures are logged; the live answer is still returned.
func (s *QueryService) Reconcile(ctx context.Context, email string) (Status, error) {
	ok, err := s.Check(ctx, email)
	s.metrics.EntitlementChecked(string(SourceLive), ok)
	if err != nil {
		return StatusUnknown, err
	}

	status := StatusInactive
	if ok {
		status = StatusActive
	}
	if s.store == nil {
		return status, nil
	}

	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()
	if _, err := s.store.Upsert(storeCtx, email, status, s.reconcileStamp()); err != nil {
		s.log.WarnContext(ctx, "failed to store reconciled status",
			logger.Email(email), logger.Status(status.String()), logger.Error(err))
	}
	return status, nil
}

func (s *QueryService) reconcileStamp() time.Time {
	return s.now().UTC().Truncate(time.Second).Add(-s.margin)
}
