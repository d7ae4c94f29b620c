package webhook

import (
	"sync"
	"time"
)

// CircuitState is the position of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	// CircuitHalfOpen lets probe calls through after the recovery timeout.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker stops calling an upstream after consecutive failures and
// probes it again once the recovery timeout has passed. Safe for concurrent use.
type CircuitBreaker struct {
	mu       sync.Mutex
	now      func() time.Time
	onChange func(from, to CircuitState)

	maxFailures  int
	minSuccesses int
	recovery     time.Duration

	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
}

// CircuitOption configures a CircuitBreaker.
type CircuitOption func(*CircuitBreaker)

// WithCircuitClock overrides the time source.
func WithCircuitClock(now func() time.Time) CircuitOption {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithCircuitObserver calls fn after every state change. fn runs outside the
// breaker lock and must not block.
func WithCircuitObserver(fn func(from, to CircuitState)) CircuitOption {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

// NewCircuitBreaker opens after maxFailures consecutive failures and closes
// again after minSuccesses successful probes. Non-positive arguments fall back
// to 5 failures, 1 success and a 30 second recovery timeout.
func NewCircuitBreaker(maxFailures, minSuccesses int, recovery time.Duration, opts ...CircuitOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		now:          time.Now,
		maxFailures:  max(maxFailures, 0),
		minSuccesses: max(minSuccesses, 0),
		recovery:     max(recovery, 0),
	}
	if cb.maxFailures == 0 {
		cb.maxFailures = 5
	}
	if cb.minSuccesses == 0 {
		cb.minSuccesses = 1
	}
	if cb.recovery == 0 {
		cb.recovery = 30 * time.Second
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Allow reports whether a call may proceed. An open circuit whose recovery
// timeout has passed moves to half-open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	from := cb.state
	if cb.state == CircuitOpen && cb.recovered() {
		cb.state, cb.successes = CircuitHalfOpen, 0
	}
	allowed := cb.state != CircuitOpen
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return allowed
}

// RecordSuccess counts a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.minSuccesses {
			cb.state, cb.failures, cb.successes = CircuitClosed, 0, 0
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// RecordFailure counts a failed call. A failed probe reopens the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.trip()
		}
	case CircuitHalfOpen:
		cb.trip()
	case CircuitOpen:
		cb.openedAt = cb.now()
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// Execute runs fn when the circuit allows it and records the outcome.
// It returns ErrCircuitOpen without calling fn while the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// State returns the current state. An open circuit past its recovery timeout
// reports half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.recovered() {
		return CircuitHalfOpen
	}
	return cb.state
}

// trip must be called with mu held.
func (cb *CircuitBreaker) trip() {
	cb.state, cb.successes = CircuitOpen, 0
	cb.openedAt = cb.now()
}

func (cb *CircuitBreaker) recovered() bool {
	return cb.now().Sub(cb.openedAt) > cb.recovery
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if from != to && cb.onChange != nil {
		cb.onChange(from, to)
	}
}
