package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/confeitaria/pkg/logger"
	"github.com/dmitrymomot/confeitaria/pkg/metrics"
	"github.com/dmitrymomot/confeitaria/pkg/statemachine"
	"github.com/dmitrymomot/confeitaria/pkg/webhook"
)

// Decision is the access gate verdict.
type Decision string

const (
	DecisionAdmit             Decision = "admit"
	DecisionRedirectToLogin   Decision = "redirect_to_login"
	DecisionRedirectToPaywall Decision = "redirect_to_paywall"
	// DecisionPending means a checkout just completed but entitlement has not
	// been confirmed yet.
	DecisionPending Decision = "pending"
)

// Decide combines authentication with the best known subscription signal.
// Unauthenticated principals are never admitted.
func Decide(authenticated bool, signal Status, pending bool) Decision {
	switch {
	case !authenticated:
		return DecisionRedirectToLogin
	case signal == StatusActive:
		return DecisionAdmit
	case pending:
		return DecisionPending
	}
	return DecisionRedirectToPaywall
}

// EntitlementChecker re-queries entitlement live and records the answer.
// *QueryService implements it.
type EntitlementChecker interface {
	Reconcile(ctx context.Context, email string) (Status, error)
}

// AccessRequest carries what the gate knows about the caller.
type AccessRequest struct {
	Authenticated bool
	Email         string
	// SessionMarker is the checkout session id the processor appended to the
	// return URL. Non-empty means the caller just finished checkout.
	SessionMarker string
}

// Verdict is the gate decision with the signal it was based on.
type Verdict struct {
	Decision Decision
	Signal   Status
	Source   Source
	// Polls counts live re-checks made while pending.
	Polls int
}

// Async verification lifecycle.
var (
	verifyIdle     = statemachine.StringState("idle")
	verifyPending  = statemachine.StringState("pending")
	verifyResolved = statemachine.StringState("resolved")
	verifyFailed   = statemachine.StringState("failed")

	verifyStart   = statemachine.StringEvent("start")
	verifyResolve = statemachine.StringEvent("resolve")
	verifyFail    = statemachine.StringEvent("fail")
)

var verificationLifecycle = statemachine.MustDefine(verifyIdle,
	statemachine.WithTransition(verifyIdle, verifyPending, verifyStart),
	statemachine.WithTransition(verifyPending, verifyResolved, verifyResolve),
	statemachine.WithTransition(verifyPending, verifyFailed, verifyFail),
	statemachine.WithTerminal(verifyResolved, verifyFailed),
)

// Gate resolves access from the store, falling back to live checks.
type Gate struct {
	store        Store
	checker      EntitlementChecker
	backoff      webhook.BackoffStrategy
	maxWait      time.Duration
	storeTimeout time.Duration
	recheckAfter time.Duration
	now          func() time.Time
	metrics      *metrics.Billing
	log          *slog.Logger
}

// DefaultStaleRecheck is how old a store record may get before the gate
// confirms it live.
const DefaultStaleRecheck = time.Hour

// GateOption configures Gate.
type GateOption func(*Gate)

// WithPolling sets the backoff between live checks and the total wait while pending.
func WithPolling(b webhook.BackoffStrategy, maxWait time.Duration) GateOption {
	return func(g *Gate) {
		if b != nil {
			g.backoff = b
		}
		g.maxWait = maxWait
	}
}

func WithGateStoreTimeout(d time.Duration) GateOption {
	return func(g *Gate) { g.storeTimeout = d }
}

// WithStaleRecheck makes the gate confirm store records older than d with a
// live check. Zero trusts them until the next write.
func WithStaleRecheck(d time.Duration) GateOption {
	return func(g *Gate) {
		if d >= 0 {
			g.recheckAfter = d
		}
	}
}

func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

func WithGateMetrics(m *metrics.Billing) GateOption {
	return func(g *Gate) { g.metrics = m }
}

func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.log = l }
}

// NewGate creates the access gate. checker may be nil, in which case unknown
// store records are treated as not entitled.
func NewGate(store Store, checker EntitlementChecker, opts ...GateOption) *Gate {
	if store == nil {
		panic("billing: store is required")
	}
	g := &Gate{
		store:   store,
		checker: checker,
		backoff: webhook.ExponentialBackoff{
			InitialInterval: time.Second,
			MaxInterval:     4 * time.Second,
			Multiplier:      2,
		},
		maxWait:      10 * time.Second,
		recheckAfter: DefaultStaleRecheck,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = logger.OrDiscard(g.log).With(logger.Component("billing.gate"))
	return g
}

// Admit decides whether req may enter the gated area. With a session marker
// and no active signal it polls live entitlement until it turns active or
// the max wait elapses, then answers pending.
func (g *Gate) Admit(ctx context.Context, req AccessRequest) Verdict {
	v := g.admit(ctx, req)
	g.metrics.GateDecided(string(v.Decision))
	return v
}

func (g *Gate) admit(ctx context.Context, req AccessRequest) Verdict {
	if !req.Authenticated || req.Email == "" {
		return Verdict{Decision: Decide(false, StatusUnknown, false), Signal: StatusUnknown, Source: SourceNone}
	}

	signal, source := g.Resolve(ctx, req.Email)
	if signal == StatusActive || req.SessionMarker == "" {
		return Verdict{Decision: Decide(true, signal, false), Signal: signal, Source: source}
	}

	signal, polls, pending := g.poll(ctx, req.Email)
	if signal == StatusActive {
		source = SourceLive
	}
	return Verdict{Decision: Decide(true, signal, pending), Signal: signal, Source: source, Polls: polls}
}

// Resolve returns the best subscription signal for email: a recent store
// record as is, otherwise a live reconciliation. A stale record whose live
// check fails keeps its stored status; everything else that fails resolves
// to inactive.
func (g *Gate) Resolve(ctx context.Context, email string) (Status, Source) {
	storeCtx, cancel := withTimeout(ctx, g.storeTimeout)
	rec, err := g.store.Get(storeCtx, email)
	cancel()

	fallback := StatusInactive
	switch {
	case err != nil:
		g.log.WarnContext(ctx, "store lookup failed, falling back to live check", logger.Email(email), logger.Error(err))
	case rec.Status == StatusUnknown:
	case !g.stale(rec):
		g.metrics.EntitlementChecked(string(SourceStore), rec.Status.Entitled())
		return rec.Status, SourceStore
	default:
		fallback = rec.Status
	}

	if g.checker == nil {
		return StatusInactive, SourceNone
	}
	status, err := g.checker.Reconcile(ctx, email)
	if err != nil {
		g.log.WarnContext(ctx, "live entitlement check failed",
			logger.Email(email), logger.Status(fallback.String()), logger.Error(err))
		if fallback != StatusInactive {
			return fallback, SourceStore
		}
		return StatusInactive, SourceLive
	}
	return status, SourceLive
}

// stale reports whether rec is old enough to confirm live.
func (g *Gate) stale(rec Record) bool {
	return g.checker != nil && g.recheckAfter > 0 && g.now().Sub(rec.LastUpdated) > g.recheckAfter
}

// poll re-checks entitlement with backoff. It reports the last signal, the
// number of checks made and whether verification is still pending.
func (g *Gate) poll(ctx context.Context, email string) (Status, int, bool) {
	m := verificationLifecycle.NewMachine()
	g.fire(ctx, m, verifyStart)

	if g.checker == nil {
		g.fire(ctx, m, verifyFail)
		return StatusInactive, 0, true
	}

	deadline := time.Now().Add(g.maxWait)
	signal := StatusInactive
	polls := 0

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			wait := min(g.backoff.NextInterval(attempt), time.Until(deadline))
			if wait <= 0 || !sleep(ctx, wait) {
				break
			}
		}

		polls++
		status, err := g.checker.Reconcile(ctx, email)
		if err != nil {
			g.log.DebugContext(ctx, "pending entitlement check failed", logger.Email(email), logger.Error(err))
		} else {
			signal = status
		}
		if signal == StatusActive {
			g.fire(ctx, m, verifyResolve)
			return signal, polls, false
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			break
		}
	}

	g.fire(ctx, m, verifyFail)
	g.log.InfoContext(ctx, "entitlement still pending after checkout",
		logger.Email(email), slog.Int("polls", polls))
	return signal, polls, true
}

func (g *Gate) fire(ctx context.Context, m *statemachine.Machine, ev statemachine.Event) {
	if err := m.Fire(ctx, ev, nil); err != nil {
		g.log.ErrorContext(ctx, "verification lifecycle transition failed",
			slog.String("state", m.Current().Name()), slog.String("event", ev.Name()), logger.Error(err))
	}
}

// sleep waits for d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
