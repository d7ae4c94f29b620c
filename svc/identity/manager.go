package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/confeitaria/pkg/broadcast"
	"github.com/dmitrymomot/confeitaria/pkg/logger"
)

// ChangeKind tells subscribers what happened to a session.
type ChangeKind string

const (
	SignedIn  ChangeKind = "signed_in"
	SignedOut ChangeKind = "signed_out"
)

// Change is published whenever a session starts or ends.
type Change struct {
	Kind    ChangeKind
	Session Session
}

// Manager tracks live sessions and publishes their changes. Ended sessions
// stay revoked until their token would have expired.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]Session
	revoked  map[string]time.Time
	bus      *broadcast.MemoryBroadcaster[Change]
	now      func() time.Time
	log      *slog.Logger
}

// ManagerOption configures Manager.
type ManagerOption func(*Manager)

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithBufferSize sets how many changes a slow subscriber may lag behind
// before it starts missing them.
func WithBufferSize(n int) ManagerOption {
	return func(m *Manager) { m.bus = broadcast.NewMemoryBroadcaster[Change](n) }
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]Session),
		revoked:  make(map[string]time.Time),
		bus:      broadcast.NewMemoryBroadcaster[Change](64),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = logger.OrDiscard(m.log).With(logger.Component("identity.manager"))
	return m
}

// Touch records s as live. The first sighting of a session id publishes
// SignedIn; later calls only refresh it. A session ended with End is
// rejected with ErrSessionRevoked.
func (m *Manager) Touch(ctx context.Context, s Session) error {
	if s.Expired(m.now()) {
		return ErrSessionExpired
	}

	m.mu.Lock()
	m.pruneLocked()
	if _, gone := m.revoked[s.ID]; gone {
		m.mu.Unlock()
		return ErrSessionRevoked
	}
	_, known := m.sessions[s.ID]
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if known {
		return nil
	}
	m.log.DebugContext(ctx, "session started", logger.SessionID(s.ID), logger.UserID(s.UserID))
	return m.publish(ctx, Change{Kind: SignedIn, Session: s})
}

// End forgets s, revokes its id and publishes SignedOut. Ending an unknown
// session still publishes so every subscriber learns about the logout.
func (m *Manager) End(ctx context.Context, s Session) error {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.revoked[s.ID] = s.ExpiresAt
	m.mu.Unlock()

	m.log.DebugContext(ctx, "session ended", logger.SessionID(s.ID), logger.UserID(s.UserID))
	return m.publish(ctx, Change{Kind: SignedOut, Session: s})
}

// Revoked reports whether the session with id was ended and has not yet
// expired.
func (m *Manager) Revoked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	_, ok := m.revoked[id]
	return ok
}

// Active returns the live session with id.
func (m *Manager) Active(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok && s.Expired(m.now()) {
		delete(m.sessions, id)
		return Session{}, false
	}
	return s, ok
}

// Subscribe returns a subscription that receives every later Change until
// ctx is done or the subscriber is closed.
func (m *Manager) Subscribe(ctx context.Context) broadcast.Subscriber[Change] {
	return m.bus.Subscribe(ctx)
}

// Close ends all subscriptions.
func (m *Manager) Close() error {
	return m.bus.Close()
}

func (m *Manager) publish(ctx context.Context, c Change) error {
	if err := m.bus.Broadcast(ctx, broadcast.Message[Change]{Data: c}); err != nil {
		m.log.WarnContext(ctx, "failed to publish session change",
			slog.String("kind", string(c.Kind)), logger.SessionID(c.Session.ID), logger.Error(err))
		return err
	}
	return nil
}

func (m *Manager) pruneLocked() {
	now := m.now()
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
		}
	}
	for id, exp := range m.revoked {
		if !exp.IsZero() && now.After(exp) {
			delete(m.revoked, id)
		}
	}
}
