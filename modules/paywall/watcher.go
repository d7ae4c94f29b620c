package paywall

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/confeitaria/pkg/logger"
	"github.com/dmitrymomot/confeitaria/svc/billing"
	"github.com/dmitrymomot/confeitaria/svc/identity"
)

// Watcher refreshes entitlement in the background when a user signs in, so
// the first gate check usually finds a fresh store record.
type Watcher struct {
	sessions *identity.Manager
	checker  billing.EntitlementChecker
	timeout  time.Duration
	log      *slog.Logger
}

// NewWatcher creates a watcher bounding each reconciliation by timeout.
func NewWatcher(sessions *identity.Manager, checker billing.EntitlementChecker, timeout time.Duration, log *slog.Logger) *Watcher {
	return &Watcher{
		sessions: sessions,
		checker:  checker,
		timeout:  timeout,
		log:      logger.OrDiscard(log).With(logger.Component("paywall.watcher")),
	}
}

// Run consumes session changes until ctx is done or the manager is closed.
// It waits for in-flight reconciliations before returning.
func (w *Watcher) Run(ctx context.Context) error {
	sub := w.sessions.Subscribe(ctx)
	defer sub.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Receive():
			if !ok {
				return nil
			}
			change := msg.Data
			switch change.Kind {
			case identity.SignedIn:
				wg.Add(1)
				go func() {
					defer wg.Done()
					w.reconcile(ctx, change.Session)
				}()
			case identity.SignedOut:
				w.log.DebugContext(ctx, "session signed out", logger.SessionID(change.Session.ID))
			}
		}
	}
}

func (w *Watcher) reconcile(ctx context.Context, s identity.Session) {
	if s.Email == "" {
		return
	}
	ctx, cancel := withTimeout(ctx, w.timeout)
	defer cancel()

	status, err := w.checker.Reconcile(ctx, s.Email)
	if err != nil {
		w.log.WarnContext(ctx, "sign-in entitlement refresh failed", logger.Email(s.Email), logger.Error(err))
		return
	}
	w.log.DebugContext(ctx, "entitlement refreshed on sign-in", logger.Email(s.Email), logger.Status(status.String()))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
