package statemachine

import (
	"errors"
	"fmt"
)

// Definition is an immutable transition table. It is built once and shared by
// any number of Machine instances.
type Definition struct {
	initial     State
	transitions map[string]map[string][]Transition
	terminal    map[string]struct{}
}

// Option configures a Definition during construction.
type Option func(*Definition) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption func(*Transition)

// Define builds a Definition starting in initial.
func Define(initial State, opts ...Option) (*Definition, error) {
	if initial == nil {
		return nil, ErrInvalidState
	}

	d := &Definition{
		initial:     initial,
		transitions: make(map[string]map[string][]Transition),
		terminal:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// MustDefine is like Define but panics on error. Intended for package-level tables.
func MustDefine(initial State, opts ...Option) *Definition {
	d, err := Define(initial, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to define state machine: %v", err))
	}
	return d
}

// WithTransition adds from --event--> to. Several transitions may share the
// same from/event pair; the first whose guards pass wins.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(d *Definition) error {
		if from == nil || to == nil || event == nil {
			return ErrInvalidTransition
		}
		t := Transition{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}

		byEvent, ok := d.transitions[from.Name()]
		if !ok {
			byEvent = make(map[string][]Transition)
			d.transitions[from.Name()] = byEvent
		}
		byEvent[event.Name()] = append(byEvent[event.Name()], t)
		return nil
	}
}

// WithTerminal marks states that end the machine's lifecycle. Terminal states
// may not have outgoing transitions.
func WithTerminal(states ...State) Option {
	return func(d *Definition) error {
		for _, s := range states {
			if s == nil {
				return ErrInvalidState
			}
			if _, ok := d.transitions[s.Name()]; ok {
				return errors.Join(ErrInvalidTransition, fmt.Errorf("terminal state %q has outgoing transitions", s.Name()))
			}
			d.terminal[s.Name()] = struct{}{}
		}
		return nil
	}
}

// WithGuard adds a guard to a transition.
func WithGuard(guard Guard) TransitionOption {
	return func(t *Transition) {
		if guard != nil {
			t.Guards = append(t.Guards, guard)
		}
	}
}

// WithAction adds an action to a transition.
func WithAction(action Action) TransitionOption {
	return func(t *Transition) {
		if action != nil {
			t.Actions = append(t.Actions, action)
		}
	}
}

// Initial returns the state new machines start in.
func (d *Definition) Initial() State {
	return d.initial
}

// IsTerminal reports whether s was declared terminal.
func (d *Definition) IsTerminal(s State) bool {
	if s == nil {
		return false
	}
	_, ok := d.terminal[s.Name()]
	return ok
}

// NewMachine returns a machine positioned at the initial state.
func (d *Definition) NewMachine() *Machine {
	return &Machine{def: d, current: d.initial}
}
