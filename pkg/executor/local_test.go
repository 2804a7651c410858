// SPDX-License-Identifier: BSD-3-Clause

package executor

import (
	"context"
	"testing"
	"time"
)

func TestLocalExecutorRunCapturesOutput(t *testing.T) {
	e := NewLocalExecutor()
	res, err := e.Run(context.Background(), "echo ok")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != 0 {
		t.Fatalf("Status = %d, want 0", res.Status)
	}
	if res.Stdout != "ok\n" {
		t.Fatalf("Stdout = %q, want %q", res.Stdout, "ok\n")
	}
}

func TestLocalExecutorNonZeroExit(t *testing.T) {
	e := NewLocalExecutor()
	res, err := e.Run(context.Background(), "exit 7")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != 7 {
		t.Fatalf("Status = %d, want 7", res.Status)
	}
}

func TestLocalExecutorTimeout(t *testing.T) {
	e := NewLocalExecutor()
	_, err := e.RunWithTimeout(context.Background(), "sleep 2", 50*time.Millisecond)
	if !IsRetryable(err) {
		t.Fatalf("RunWithTimeout error = %v, want a retryable *Timeout", err)
	}
}

func TestLocalExecutorIsConnected(t *testing.T) {
	e := NewLocalExecutor()
	if !e.IsConnected() {
		t.Fatal("IsConnected() = false, want true")
	}
	if e.ExecutorType() != TypeLocal {
		t.Fatalf("ExecutorType() = %s, want local", e.ExecutorType())
	}
}

func TestCheckCommandExists(t *testing.T) {
	e := NewLocalExecutor()
	ok, err := CheckCommandExists(context.Background(), e, "sh")
	if err != nil {
		t.Fatalf("CheckCommandExists: %v", err)
	}
	if !ok {
		t.Fatal("CheckCommandExists(sh) = false, want true")
	}
}
