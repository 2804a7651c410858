// SPDX-License-Identifier: BSD-3-Clause

package fsm

import (
	"context"
	"fmt"
	"time"
)

// GuardFunc decides whether a transition may fire. It receives the data
// passed to Fire so guards can inspect trigger-specific arguments.
type GuardFunc func(ctx context.Context, args ...any) bool

// ActionFunc runs after a transition's guard passes and before the new
// state is considered entered. A non-nil error aborts the transition.
type ActionFunc func(ctx context.Context, from, to, trigger string) error

// PersistenceCallback is invoked after every committed transition so the
// caller can durably record the new state.
type PersistenceCallback func(ctx context.Context, machineName, state string) error

// BroadcastCallback is invoked after every committed transition so the
// caller can publish the change to interested subscribers.
type BroadcastCallback func(ctx context.Context, machineName, previousState, currentState, trigger string)

// Transition declares one legal edge in the state machine's transition
// table, with an optional guard and post-guard action.
type Transition struct {
	From    string
	To      string
	Trigger string
	Guard   GuardFunc
	Action  ActionFunc
}

// Config holds the declarative definition of a state machine: its states,
// its transition table, and the callbacks fired around a transition.
type Config struct {
	Name         string
	InitialState string
	States       []string
	Transitions  []Transition
	FireTimeout  time.Duration
	Persistence  PersistenceCallback
	Broadcast    BroadcastCallback
	EnableTracing bool
}

// Option configures a Config. Options are applied in order, so later
// options override earlier ones for scalar fields.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithName sets the state machine's name, used in logs, traces, and errors.
func WithName(name string) Option {
	return optionFunc(func(c *Config) { c.Name = name })
}

// WithInitialState sets the state the machine starts in.
func WithInitialState(state string) Option {
	return optionFunc(func(c *Config) { c.InitialState = state })
}

// WithStates declares the full set of valid states.
func WithStates(states ...string) Option {
	return optionFunc(func(c *Config) { c.States = append([]string(nil), states...) })
}

// WithTransition adds an unconditional transition to the table.
func WithTransition(from, to, trigger string) Option {
	return optionFunc(func(c *Config) {
		c.Transitions = append(c.Transitions, Transition{From: from, To: to, Trigger: trigger})
	})
}

// WithGuardedTransition adds a transition that only fires when guard
// returns true.
func WithGuardedTransition(from, to, trigger string, guard GuardFunc) Option {
	return optionFunc(func(c *Config) {
		c.Transitions = append(c.Transitions, Transition{From: from, To: to, Trigger: trigger, Guard: guard})
	})
}

// WithActionTransition adds a transition that runs action after its guard
// (if any) passes.
func WithActionTransition(from, to, trigger string, guard GuardFunc, action ActionFunc) Option {
	return optionFunc(func(c *Config) {
		c.Transitions = append(c.Transitions, Transition{From: from, To: to, Trigger: trigger, Guard: guard, Action: action})
	})
}

// WithFireTimeout bounds how long a single Fire call may run before it is
// treated as a failed transition.
func WithFireTimeout(timeout time.Duration) Option {
	return optionFunc(func(c *Config) { c.FireTimeout = timeout })
}

// WithPersistence sets the callback invoked after each committed transition
// to durably record the new state.
func WithPersistence(cb PersistenceCallback) Option {
	return optionFunc(func(c *Config) { c.Persistence = cb })
}

// WithBroadcast sets the callback invoked after each committed transition
// to notify subscribers of the change.
func WithBroadcast(cb BroadcastCallback) Option {
	return optionFunc(func(c *Config) { c.Broadcast = cb })
}

// WithTracing enables OpenTelemetry spans around Fire calls.
func WithTracing(enabled bool) Option {
	return optionFunc(func(c *Config) { c.EnableTracing = enabled })
}

// NewConfig builds a Config from the given options, applying defaults for
// fields the caller left unset.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{FireTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}

// Validate checks internal consistency of the configuration: every state
// is named once, the initial state is one of them, and every transition
// references declared states.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidConfig)
	}
	if c.InitialState == "" {
		return fmt.Errorf("%w: initial state cannot be empty", ErrInvalidConfig)
	}
	if len(c.States) == 0 {
		return fmt.Errorf("%w: at least one state must be defined", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.States))
	initialFound := false
	for _, s := range c.States {
		if s == "" {
			return fmt.Errorf("%w: state name cannot be empty", ErrInvalidConfig)
		}
		if seen[s] {
			return fmt.Errorf("%w: duplicate state %s", ErrInvalidConfig, s)
		}
		seen[s] = true
		if s == c.InitialState {
			initialFound = true
		}
	}
	if !initialFound {
		return fmt.Errorf("%w: initial state %s not declared", ErrInvalidConfig, c.InitialState)
	}

	for _, t := range c.Transitions {
		if t.From == "" || t.To == "" || t.Trigger == "" {
			return fmt.Errorf("%w: transition fields cannot be empty", ErrInvalidConfig)
		}
		if !seen[t.From] {
			return fmt.Errorf("%w: transition from state %s not declared", ErrInvalidConfig, t.From)
		}
		if !seen[t.To] {
			return fmt.Errorf("%w: transition to state %s not declared", ErrInvalidConfig, t.To)
		}
	}

	if c.FireTimeout <= 0 {
		return fmt.Errorf("%w: fire timeout must be positive", ErrInvalidConfig)
	}

	return nil
}
