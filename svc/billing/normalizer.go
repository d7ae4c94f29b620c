package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/dmitrymomot/confeitaria/pkg/logger"
)

// Normalizer turns verified webhook payloads into Events.
type Normalizer struct {
	cache     CustomerCache
	processor Processor
	call      processorCall
	log       *slog.Logger
}

// NormalizerOption configures Normalizer.
type NormalizerOption func(*Normalizer)

// WithCustomerCache resolves subscription customers to emails through cache.
func WithCustomerCache(cache CustomerCache) NormalizerOption {
	return func(n *Normalizer) { n.cache = cache }
}

// WithCustomerLookup falls back to the processor when the cache misses.
func WithCustomerLookup(p Processor, timeout time.Duration) NormalizerOption {
	return func(n *Normalizer) {
		n.processor = p
		n.call.timeout = timeout
	}
}

func WithNormalizerLogger(l *slog.Logger) NormalizerOption {
	return func(n *Normalizer) { n.log = l }
}

func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	n.log = logger.OrDiscard(n.log)
	return n
}

// Normalize decodes payload. Unrecognized event types yield KindUnknown
// without error; an Event with an empty Email means the address could not be
// resolved. Undecodable payloads return ErrMalformedEvent.
func (n *Normalizer) Normalize(ctx context.Context, payload []byte) (Event, error) {
	var raw stripe.Event
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, errors.Join(ErrMalformedEvent, err)
	}
	if raw.ID == "" || raw.Type == "" {
		return Event{}, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}

	ev := Event{
		ID:           raw.ID,
		Kind:         KindUnknown,
		ProviderType: string(raw.Type),
		OccurredAt:   time.Unix(raw.Created, 0).UTC(),
	}

	switch raw.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var s stripe.CheckoutSession
		if err := decodeObject(raw, &s); err != nil {
			return Event{}, err
		}
		ev.Kind = KindActivated
		ev.ObjectID = s.ID
		ev.Email = s.CustomerEmail
		if ev.Email == "" && s.CustomerDetails != nil {
			ev.Email = s.CustomerDetails.Email
		}
		n.remember(ctx, ev.Email, s.Customer)

	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var s stripe.Subscription
		if err := decodeObject(raw, &s); err != nil {
			return Event{}, err
		}
		ev.Kind = subscriptionKind(raw.Type, s.Status)
		ev.ObjectID = s.ID
		ev.Email = n.subscriptionEmail(ctx, &s)

	case stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := decodeObject(raw, &inv); err != nil {
			return Event{}, err
		}
		ev.Kind = KindDeactivated
		ev.ObjectID = inv.ID
		ev.Email = inv.CustomerEmail
		if ev.Email == "" {
			ev.Email = n.customerEmail(ctx, inv.Customer)
		}
	}

	return ev, nil
}

// subscriptionKind maps created/updated events by the subscription status:
// terminal or unpaid states deactivate, everything else activates.
func subscriptionKind(t stripe.EventType, status stripe.SubscriptionStatus) Kind {
	if t == stripe.EventTypeCustomerSubscriptionDeleted {
		return KindDeactivated
	}
	switch status {
	case stripe.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncompleteExpired,
		stripe.SubscriptionStatusPaused:
		return KindDeactivated
	}
	return KindActivated
}

func decodeObject(raw stripe.Event, v any) error {
	if raw.Data == nil || len(raw.Data.Raw) == 0 {
		return fmt.Errorf("%w: missing data object", ErrMalformedEvent)
	}
	if err := json.Unmarshal(raw.Data.Raw, v); err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}
	return nil
}

func (n *Normalizer) subscriptionEmail(ctx context.Context, s *stripe.Subscription) string {
	if email := s.Metadata[emailMetadataKey]; email != "" {
		return email
	}
	return n.customerEmail(ctx, s.Customer)
}

// customerEmail resolves an expandable customer: inline email first, then the
// cache, then the processor. Lookup failures resolve to "".
func (n *Normalizer) customerEmail(ctx context.Context, c *stripe.Customer) string {
	if c == nil || c.ID == "" {
		return ""
	}
	if c.Email != "" {
		return c.Email
	}

	if n.cache != nil {
		email, err := n.cache.Email(ctx, c.ID)
		if err == nil && email != "" {
			return email
		}
		if err != nil && !errors.Is(err, ErrCustomerNotCached) {
			n.log.WarnContext(ctx, "customer cache lookup failed",
				logger.CustomerID(c.ID), logger.Error(err))
		}
	}

	if n.processor == nil {
		return ""
	}
	var email string
	err := n.call.do(ctx, "customer_email", func(ctx context.Context) error {
		var err error
		email, err = n.processor.CustomerEmail(ctx, c.ID)
		return err
	})
	if err != nil {
		n.log.WarnContext(ctx, "customer email lookup failed",
			logger.CustomerID(c.ID), logger.Error(err))
		return ""
	}
	n.remember(ctx, email, c)
	return email
}

func (n *Normalizer) remember(ctx context.Context, email string, c *stripe.Customer) {
	if n.cache == nil || email == "" || c == nil || c.ID == "" {
		return
	}
	if err := n.cache.Remember(ctx, CustomerRef{Email: email, CustomerID: c.ID}); err != nil {
		n.log.WarnContext(ctx, "failed to cache customer reference",
			logger.CustomerID(c.ID), logger.Error(err))
	}
}
