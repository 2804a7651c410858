// SPDX-License-Identifier: BSD-3-Clause

// Package fleetsim provides in-memory fakes for the executor and
// package-manager contracts, standing in for SSH/apt/dnf/osquery in
// tests so the suite never shells out to a real host.
package fleetsim

import (
	"context"
	"fmt"
	"time"

	"github.com/tendhost/tendhost/pkg/executor"
)

// ScriptedExecutor is a fake executor.Executor that returns canned
// results keyed by exact command string, in the order they were
// recorded. Unscripted commands return ErrSpawnError.
type ScriptedExecutor struct {
	connected bool
	kind      executor.Type
	responses map[string][]scriptedResponse
	calls     []string
}

type scriptedResponse struct {
	result executor.Result
	err    error
}

var _ executor.Executor = (*ScriptedExecutor)(nil)

// NewScriptedExecutor returns a connected executor with no responses
// configured yet; use When to script commands before use.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{
		connected: true,
		kind:      executor.TypeLocal,
		responses: make(map[string][]scriptedResponse),
	}
}

// When queues result as the next response to command. Multiple calls for
// the same command queue multiple responses, returned in call order.
func (e *ScriptedExecutor) When(command string, result executor.Result, err error) *ScriptedExecutor {
	e.responses[command] = append(e.responses[command], scriptedResponse{result: result, err: err})
	return e
}

// WithStatus is a convenience for the common case of scripting an exit
// status and stdout with no error.
func (e *ScriptedExecutor) WithStatus(command string, status int, stdout, stderr string) *ScriptedExecutor {
	return e.When(command, executor.Result{Status: status, Stdout: stdout, Stderr: stderr}, nil)
}

// SetConnected overrides IsConnected's return value.
func (e *ScriptedExecutor) SetConnected(connected bool) {
	e.connected = connected
}

// Calls returns every command Run/RunWithTimeout was invoked with, in order.
func (e *ScriptedExecutor) Calls() []string {
	return append([]string(nil), e.calls...)
}

// Run implements executor.Executor.
func (e *ScriptedExecutor) Run(ctx context.Context, command string) (executor.Result, error) {
	return e.RunWithTimeout(ctx, command, 0)
}

// RunWithTimeout implements executor.Executor.
func (e *ScriptedExecutor) RunWithTimeout(ctx context.Context, command string, _ time.Duration) (executor.Result, error) {
	e.calls = append(e.calls, command)

	queue := e.responses[command]
	if len(queue) == 0 {
		return executor.Result{}, fmt.Errorf("%w: no scripted response for %q", executor.ErrSpawnError, command)
	}
	next := queue[0]
	e.responses[command] = queue[1:]
	return next.result, next.err
}

// IsConnected implements executor.Executor.
func (e *ScriptedExecutor) IsConnected() bool {
	return e.connected
}

// ExecutorType implements executor.Executor.
func (e *ScriptedExecutor) ExecutorType() executor.Type {
	return e.kind
}
