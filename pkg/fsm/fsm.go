// SPDX-License-Identifier: BSD-3-Clause

// Package fsm wraps github.com/qmuntal/stateless into a small, reusable
// finite state machine with guarded transitions, post-transition actions,
// and hooks for persisting and broadcasting state changes. It underlies
// the per-host state machine as well as any other component that needs a
// declarative transition table instead of hand-rolled switch statements.
package fsm

import (
	"context"
	"fmt"
	"sync"

	"github.com/qmuntal/stateless"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FSM is a thread-safe finite state machine built from a Config. A single
// FSM is not meant to be fired from multiple goroutines concurrently with
// an expectation of ordering; callers that need that (the host actor, the
// supervisor registry) serialize Fire calls themselves and rely on FSM's
// locking only to protect CurrentState reads from concurrent observers.
type FSM struct {
	cfg     *Config
	machine *stateless.StateMachine
	tracer  trace.Tracer

	mu      sync.RWMutex
	current string
}

// New builds an FSM from cfg, wiring every declared transition into the
// underlying stateless.StateMachine. It returns an error if cfg fails
// Validate.
func New(cfg *Config) (*FSM, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &FSM{
		cfg:     cfg,
		current: cfg.InitialState,
		machine: stateless.NewStateMachine(cfg.InitialState),
	}
	if cfg.EnableTracing {
		f.tracer = otel.Tracer("tendhost/fsm")
	}

	byFrom := make(map[string][]Transition)
	for _, t := range cfg.Transitions {
		byFrom[t.From] = append(byFrom[t.From], t)
	}
	for from, transitions := range byFrom {
		stateCfg := f.machine.Configure(from)
		for _, t := range transitions {
			t := t
			if t.Guard != nil {
				stateCfg.PermitIf(t.Trigger, t.To, func(ctx context.Context, args ...any) bool {
					return t.Guard(ctx, args...)
				})
			} else {
				stateCfg.Permit(t.Trigger, t.To)
			}
			if t.Action != nil {
				f.machine.Configure(t.To).OnEntryFrom(t.Trigger, func(ctx context.Context, args ...any) error {
					return t.Action(ctx, t.From, t.To, t.Trigger)
				})
			}
		}
	}

	return f, nil
}

// Fire attempts the transition registered for trigger from the current
// state. On success it updates the current state, then invokes the
// configured persistence callback followed by the broadcast callback
// (best-effort; its result is not observable). If persistence fails, Fire
// returns ErrPersistenceFailed wrapping the underlying error and the
// broadcast callback is not invoked.
func (f *FSM) Fire(ctx context.Context, trigger string, args ...any) error {
	f.mu.Lock()

	var span trace.Span
	if f.tracer != nil {
		ctx, span = f.tracer.Start(ctx, "fsm.Fire", trace.WithAttributes(
			attribute.String("fsm.name", f.cfg.Name),
			attribute.String("fsm.state", f.current),
			attribute.String("fsm.trigger", trigger),
		))
		defer span.End()
	}

	if ok, _ := f.machine.CanFire(trigger, args...); !ok {
		from := f.current
		f.mu.Unlock()
		err := &InvalidTransition{From: from, To: f.TargetFor(trigger), Trigger: trigger}
		if span != nil {
			span.RecordError(err)
		}
		return err
	}

	fireCtx, cancel := context.WithTimeout(ctx, f.cfg.FireTimeout)
	defer cancel()

	if err := f.machine.FireCtx(fireCtx, trigger, args...); err != nil {
		f.mu.Unlock()
		if fireCtx.Err() != nil {
			return ErrTransitionTimeout
		}
		if span != nil {
			span.RecordError(err)
		}
		return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}

	raw, err := f.machine.State(ctx)
	if err != nil {
		f.mu.Unlock()
		return fmt.Errorf("failed to read committed state: %w", err)
	}
	previous := f.current
	f.current = fmt.Sprintf("%v", raw)
	current := f.current
	name := f.cfg.Name
	persist := f.cfg.Persistence
	broadcast := f.cfg.Broadcast
	f.mu.Unlock()

	if span != nil {
		span.SetAttributes(attribute.String("fsm.previous", previous), attribute.String("fsm.new", current))
	}

	if persist != nil {
		if err := persist(ctx, name, current); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
		}
	}
	if broadcast != nil {
		broadcast(ctx, name, previous, current, trigger)
	}

	return nil
}

// CurrentState returns the machine's current state.
func (f *FSM) CurrentState() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// IsInState reports whether the machine is currently in state.
func (f *FSM) IsInState(state string) bool {
	return f.CurrentState() == state
}

// CanFire reports whether trigger is legal from the current state.
func (f *FSM) CanFire(trigger string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ok, _ := f.machine.CanFire(trigger)
	return ok
}

// TargetFor returns the destination state trigger is configured to reach,
// independent of the machine's current state. It returns "" if trigger is
// not registered for any transition in the config.
func (f *FSM) TargetFor(trigger string) string {
	for _, t := range f.cfg.Transitions {
		if t.Trigger == trigger {
			return t.To
		}
	}
	return ""
}

// PermittedTriggers returns every trigger that is legal from the current
// state.
func (f *FSM) PermittedTriggers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	triggers, err := f.machine.PermittedTriggers()
	if err != nil {
		return nil
	}
	out := make([]string, len(triggers))
	for i, t := range triggers {
		out[i] = fmt.Sprintf("%v", t)
	}
	return out
}

// Name returns the state machine's configured name.
func (f *FSM) Name() string {
	return f.cfg.Name
}

// ToGraph returns a Graphviz DOT representation of the transition table,
// useful for documentation and debugging.
func (f *FSM) ToGraph() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.machine.ToGraph()
}
