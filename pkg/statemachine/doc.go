// Package statemachine models explicit lifecycles as finite state machines.
//
// A Definition is an immutable transition table declared once, typically at
// package level. Each running operation gets its own Machine:
//
//	var checkLifecycle = statemachine.MustDefine(idle,
//	    statemachine.WithTransition(idle, pending, start),
//	    statemachine.WithTransition(pending, resolved, resolve),
//	    statemachine.WithTransition(pending, failed, fail),
//	    statemachine.WithTerminal(resolved, failed),
//	)
//
//	m := checkLifecycle.NewMachine()
//	if err := m.Fire(ctx, start, nil); err != nil {
//	    return err
//	}
//
// Transitions may carry guards (all must pass) and actions (run in order before
// the state changes; an error aborts the transition). Firing an event with no
// matching transition returns *ErrNoTransitionAvailable.
package statemachine
