// SPDX-License-Identifier: BSD-3-Clause

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// LocalExecutor runs commands in a subprocess on the machine tendhostd
// itself runs on. It is selected by the host-dependency factory for
// loopback/localhost targets and is the executor fleetsim's fakes stand
// in for in unit tests.
type LocalExecutor struct{}

var _ Executor = (*LocalExecutor)(nil)

// NewLocalExecutor returns a ready-to-use LocalExecutor. There is no
// connection to establish: IsConnected always reports true.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// Run implements Executor.
func (e *LocalExecutor) Run(ctx context.Context, command string) (Result, error) {
	return e.RunWithTimeout(ctx, command, 0)
}

// RunWithTimeout implements Executor.
func (e *LocalExecutor) RunWithTimeout(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}

	if err == nil {
		return res, nil
	}

	if runCtx.Err() != nil && timeout > 0 {
		return res, &Timeout{Duration: timeout}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.Status = exitErr.ExitCode()
		return res, nil
	}

	return res, fmt.Errorf("%w: %w", ErrSpawnError, err)
}

// IsConnected implements Executor; a local executor is always connected.
func (e *LocalExecutor) IsConnected() bool {
	return true
}

// ExecutorType implements Executor.
func (e *LocalExecutor) ExecutorType() Type {
	return TypeLocal
}
