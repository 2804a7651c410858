// SPDX-License-Identifier: BSD-3-Clause

// Package executor implements the remote-execution contract of spec §4.4:
// a capability the host machine and the package-manager contract consume
// to run shell commands against a target host, either over SSH or, for
// loopback targets, via a local subprocess.
package executor

import (
	"context"
	"strconv"
	"time"
)

// Type identifies which Executor implementation is in use.
type Type string

const (
	TypeSSH   Type = "ssh"
	TypeLocal Type = "local"
)

// Result is the structured outcome of a command run.
type Result struct {
	Status   int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Executor is the capability consumed by the host machine and package
// manager implementations. An implementation serializes nothing itself;
// callers (the host machine's mailbox loop) guarantee at most one call in
// flight per host at a time.
type Executor interface {
	// Run executes command via a shell interpreter and returns its
	// structured result, or one of ErrConnectionFailed,
	// ErrAuthenticationFailed, ErrSpawnError, ErrIOError, ErrNotConnected.
	Run(ctx context.Context, command string) (Result, error)

	// RunWithTimeout is Run bounded by timeout; exceeding it returns
	// *Timeout instead of blocking indefinitely.
	RunWithTimeout(ctx context.Context, command string, timeout time.Duration) (Result, error)

	// IsConnected reports whether the executor currently holds a live
	// connection to its target.
	IsConnected() bool

	// ExecutorType identifies the implementation for logging and tests.
	ExecutorType() Type
}

// RunAndRequireZeroStatus runs command and returns an error wrapping
// CommandFailed if its exit status is non-zero, in addition to any error
// Run itself returns.
func RunAndRequireZeroStatus(ctx context.Context, e Executor, command string) (Result, error) {
	res, err := e.Run(ctx, command)
	if err != nil {
		return res, err
	}
	if res.Status != 0 {
		return res, &CommandFailed{Status: res.Status, Message: res.Stderr}
	}
	return res, nil
}

// CheckCommandExists probes the target for command using `which`, a
// helper derived automatically for any Executor per spec §4.4.
func CheckCommandExists(ctx context.Context, e Executor, command string) (bool, error) {
	res, err := e.Run(ctx, "which "+command)
	if err != nil {
		return false, err
	}
	return res.Status == 0, nil
}

// CommandFailed indicates a command ran but exited non-zero in a context
// that requires success.
type CommandFailed struct {
	Status  int
	Message string
}

func (e *CommandFailed) Error() string {
	return "command failed with status " + strconv.Itoa(e.Status) + ": " + e.Message
}
