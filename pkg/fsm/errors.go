// SPDX-License-Identifier: BSD-3-Clause

package fsm

import "errors"

var (
	// ErrInvalidConfig indicates that the state machine configuration is invalid.
	ErrInvalidConfig = errors.New("invalid state machine configuration")
	// ErrInvalidState indicates that the specified state is not valid for the state machine.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidTrigger indicates that the specified trigger is not valid for the current state.
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrInvalidTransition indicates that the requested state transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrTransitionTimeout indicates that a state transition exceeded the configured timeout.
	ErrTransitionTimeout = errors.New("state transition timeout")
	// ErrGuardRejected indicates that a transition guard condition was not met.
	ErrGuardRejected = errors.New("transition guard rejected trigger")
	// ErrPersistenceFailed indicates that persisting the state failed.
	ErrPersistenceFailed = errors.New("failed to persist state")
	// ErrStateMachineNotStarted indicates that the state machine has not been started.
	ErrStateMachineNotStarted = errors.New("state machine not started")
	// ErrStateMachineStopped indicates that the state machine has been stopped.
	ErrStateMachineStopped = errors.New("state machine stopped")
)

// InvalidTransition carries the from/to states of a rejected transition so
// callers can inspect it with errors.As instead of parsing an error string.
// To is the trigger's configured destination state, independent of From; it
// is empty if the trigger is not registered for any transition at all.
type InvalidTransition struct {
	From    string
	To      string
	Trigger string
}

func (e *InvalidTransition) Error() string {
	return "trigger " + e.Trigger + " not valid in state " + e.From
}

func (e *InvalidTransition) Unwrap() error {
	return ErrInvalidTransition
}
