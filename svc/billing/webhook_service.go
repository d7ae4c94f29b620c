package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/confeitaria/pkg/logger"
	"github.com/dmitrymomot/confeitaria/pkg/metrics"
	"github.com/dmitrymomot/confeitaria/pkg/statemachine"
	"github.com/dmitrymomot/confeitaria/pkg/webhook"
)

// Outcome describes how a webhook delivery was handled.
type Outcome string

const (
	OutcomeRejected  Outcome = "rejected"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
	OutcomeApplied   Outcome = "applied"
	OutcomeFailed    Outcome = "failed"
)

// Webhook request lifecycle.
var (
	stateReceived     = statemachine.StringState("received")
	stateVerifying    = statemachine.StringState("verifying")
	stateRejected     = statemachine.StringState("rejected")
	stateNormalizing  = statemachine.StringState("normalizing")
	stateSkipped      = statemachine.StringState("skipped")
	statePersisting   = statemachine.StringState("persisting")
	stateAcknowledged = statemachine.StringState("acknowledged")
	stateFailed       = statemachine.StringState("failed")

	eventVerify      = statemachine.StringEvent("verify")
	eventReject      = statemachine.StringEvent("reject")
	eventVerified    = statemachine.StringEvent("verified")
	eventSkip        = statemachine.StringEvent("skip")
	eventPersist     = statemachine.StringEvent("persist")
	eventAcknowledge = statemachine.StringEvent("acknowledge")
	eventFail        = statemachine.StringEvent("fail")
)

var webhookLifecycle = statemachine.MustDefine(stateReceived,
	statemachine.WithTransition(stateReceived, stateVerifying, eventVerify),
	statemachine.WithTransition(stateVerifying, stateRejected, eventReject),
	statemachine.WithTransition(stateVerifying, stateNormalizing, eventVerified),
	statemachine.WithTransition(stateNormalizing, stateRejected, eventReject),
	statemachine.WithTransition(stateNormalizing, stateSkipped, eventSkip),
	statemachine.WithTransition(stateNormalizing, statePersisting, eventPersist),
	statemachine.WithTransition(stateSkipped, stateAcknowledged, eventAcknowledge),
	statemachine.WithTransition(statePersisting, stateAcknowledged, eventAcknowledge),
	statemachine.WithTransition(statePersisting, stateFailed, eventFail),
	statemachine.WithTerminal(stateRejected, stateAcknowledged, stateFailed),
)

// WebhookResult reports what happened to one delivery.
type WebhookResult struct {
	Outcome Outcome
	// State is the final lifecycle state.
	State string
	Event Event
}

// WebhookService verifies, normalizes and persists processor webhooks.
type WebhookService struct {
	verifier   *webhook.Verifier
	normalizer *Normalizer
	store      Store
	ledger     Ledger
	notifier   Notifier
	metrics    *metrics.Billing
	log        *slog.Logger

	storeTimeout        time.Duration
	retryOnStoreFailure bool
}

// WebhookOption configures WebhookService.
type WebhookOption func(*WebhookService)

func WithLedger(l Ledger) WebhookOption {
	return func(s *WebhookService) {
		if l != nil {
			s.ledger = l
		}
	}
}

func WithNotifier(n Notifier) WebhookOption {
	return func(s *WebhookService) { s.notifier = n }
}

func WithWebhookMetrics(m *metrics.Billing) WebhookOption {
	return func(s *WebhookService) { s.metrics = m }
}

func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(s *WebhookService) { s.log = l }
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) WebhookOption {
	return func(s *WebhookService) { s.storeTimeout = d }
}

// WithRetryOnStoreFailure makes store failures return ErrStoreUnavailable so
// the HTTP layer answers 500 and the processor redelivers. By default store
// failures are logged and acknowledged.
func WithRetryOnStoreFailure(retry bool) WebhookOption {
	return func(s *WebhookService) { s.retryOnStoreFailure = retry }
}

// NewWebhookService creates the webhook pipeline.
// Panics if verifier, normalizer or store is nil.
func NewWebhookService(verifier *webhook.Verifier, normalizer *Normalizer, store Store, opts ...WebhookOption) *WebhookService {
	if verifier == nil {
		panic("billing: webhook verifier is required")
	}
	if normalizer == nil {
		panic("billing: normalizer is required")
	}
	if store == nil {
		panic("billing: store is required")
	}

	s := &WebhookService{
		verifier:   verifier,
		normalizer: normalizer,
		store:      store,
		ledger:     nopLedger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrDiscard(s.log).With(logger.Component("billing.webhook"))
	return s
}

// Handle processes one delivery. A non-nil error means the delivery must not
// be acknowledged: ErrNotConfigured, ErrInvalidSignature or ErrMalformedEvent
// before any mutation, or ErrStoreUnavailable when retries are enabled.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signatureHeader string) (res WebhookResult, err error) {
	m := webhookLifecycle.NewMachine()
	defer func() {
		res.State = m.Current().Name()
		s.metrics.WebhookProcessed(string(res.Outcome))
	}()

	s.fire(ctx, m, eventVerify)
	if err := s.verifier.Verify(payload, signatureHeader); err != nil {
		s.fire(ctx, m, eventReject)
		if errors.Is(err, webhook.ErrMissingSecret) {
			s.log.ErrorContext(ctx, "webhook signing secret is not configured")
			return WebhookResult{Outcome: OutcomeRejected}, errors.Join(ErrNotConfigured, err)
		}
		s.log.WarnContext(ctx, "webhook signature rejected", logger.Error(err))
		return WebhookResult{Outcome: OutcomeRejected}, errors.Join(ErrInvalidSignature, err)
	}
	s.fire(ctx, m, eventVerified)

	ev, err := s.normalizer.Normalize(ctx, payload)
	if err != nil {
		s.fire(ctx, m, eventReject)
		s.log.WarnContext(ctx, "malformed webhook payload", logger.Error(err))
		return WebhookResult{Outcome: OutcomeRejected}, err
	}

	log := s.log.With(logger.EventID(ev.ID), logger.EventType(ev.ProviderType))

	switch {
	case ev.Kind == KindUnknown:
		log.DebugContext(ctx, "ignoring unhandled webhook event")
		return s.skip(ctx, m, ev, OutcomeIgnored), nil
	case ev.Email == "":
		log.InfoContext(ctx, "webhook event has no resolvable email")
		return s.skip(ctx, m, ev, OutcomeSkipped), nil
	}

	claimed, err := s.ledger.Claim(ctx, ev.ID)
	if err != nil {
		log.WarnContext(ctx, "event ledger unavailable, relying on event ordering", logger.Error(err))
		claimed = true
	}
	if !claimed {
		log.InfoContext(ctx, "duplicate webhook event")
		return s.skip(ctx, m, ev, OutcomeDuplicate), nil
	}

	s.fire(ctx, m, eventPersist)
	status := ev.Kind.Status()

	storeCtx, cancel := withTimeout(ctx, s.storeTimeout)
	up, err := s.store.Upsert(storeCtx, ev.Email, status, ev.OccurredAt)
	cancel()
	if err != nil {
		if relErr := s.ledger.Release(ctx, ev.ID); relErr != nil {
			log.WarnContext(ctx, "failed to release event claim", logger.Error(relErr))
		}
		log.ErrorContext(ctx, "failed to persist subscription status",
			logger.Email(ev.Email), logger.Status(status.String()), logger.Error(err))
		if s.retryOnStoreFailure {
			s.fire(ctx, m, eventFail)
			return WebhookResult{Outcome: OutcomeFailed, Event: ev}, errors.Join(ErrStoreUnavailable, err)
		}
		s.fire(ctx, m, eventAcknowledge)
		return WebhookResult{Outcome: OutcomeFailed, Event: ev}, nil
	}
	s.fire(ctx, m, eventAcknowledge)

	if !up.Applied {
		log.InfoContext(ctx, "stale webhook event ignored",
			logger.Email(ev.Email), logger.Status(status.String()))
		return WebhookResult{Outcome: OutcomeStale, Event: ev}, nil
	}

	log.InfoContext(ctx, "subscription status updated",
		logger.Email(ev.Email),
		logger.Status(status.String()),
		slog.String("previous", up.Previous.String()),
	)

	if status == StatusActive && up.Previous != StatusActive && s.notifier != nil {
		if err := s.notifier.SubscriptionActivated(ctx, ev.Email); err != nil {
			log.WarnContext(ctx, "activation notification failed", logger.Email(ev.Email), logger.Error(err))
		}
	}

	return WebhookResult{Outcome: OutcomeApplied, Event: ev}, nil
}

func (s *WebhookService) skip(ctx context.Context, m *statemachine.Machine, ev Event, outcome Outcome) WebhookResult {
	s.fire(ctx, m, eventSkip)
	s.fire(ctx, m, eventAcknowledge)
	return WebhookResult{Outcome: outcome, Event: ev}
}

// fire advances the lifecycle. The table covers every path of Handle, so a
// failure here is a programming error and is only logged.
func (s *WebhookService) fire(ctx context.Context, m *statemachine.Machine, ev statemachine.Event) {
	if err := m.Fire(ctx, ev, nil); err != nil {
		s.log.ErrorContext(ctx, "webhook lifecycle transition failed",
			slog.String("state", m.Current().Name()), slog.String("event", ev.Name()), logger.Error(err))
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
