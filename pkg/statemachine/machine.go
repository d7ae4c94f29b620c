package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Machine is one running instance of a Definition. Safe for concurrent use.
type Machine struct {
	def     *Definition
	mu      sync.RWMutex
	current State
	history []State
}

func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Done reports whether the machine reached a terminal state.
func (m *Machine) Done() bool {
	return m.def.IsTerminal(m.Current())
}

// History returns the states visited before the current one, oldest first.
func (m *Machine) History() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]State(nil), m.history...)
}

// Fire applies event to the current state.
func (m *Machine) Fire(ctx context.Context, event Event, data any) error {
	if event == nil {
		return ErrInvalidEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.match(ctx, event, data)
	if err != nil {
		return err
	}

	for _, action := range t.Actions {
		if err := action(ctx, m.current, t.To, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}

	m.history = append(m.history, m.current)
	m.current = t.To
	return nil
}

// CanFire reports whether Fire would find a transition whose guards pass.
func (m *Machine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := m.match(ctx, event, data)
	return err == nil
}

// Reset returns the machine to the initial state and clears history.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.def.initial
	m.history = nil
}

// match must be called with m.mu held.
func (m *Machine) match(ctx context.Context, event Event, data any) (*Transition, error) {
	from := m.current.Name()
	candidates := m.def.transitions[from][event.Name()]
	if len(candidates) == 0 {
		return nil, NewErrNoTransitionAvailable(from, event.Name())
	}

	for i := range candidates {
		if guardsPass(ctx, candidates[i].Guards, m.current, event, data) {
			return &candidates[i], nil
		}
	}
	return nil, NewErrTransitionRejected(from, event.Name())
}

func guardsPass(ctx context.Context, guards []Guard, from State, event Event, data any) bool {
	for _, g := range guards {
		if !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}
