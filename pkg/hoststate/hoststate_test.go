// SPDX-License-Identifier: BSD-3-Clause

package hoststate

import (
	"context"
	"testing"
	"time"

	"github.com/tendhost/tendhost/internal/fleetsim"
	"github.com/tendhost/tendhost/pkg/broadcast"
	"github.com/tendhost/tendhost/pkg/config"
	"github.com/tendhost/tendhost/pkg/pkgmanager"
)

func newTestMachine(t *testing.T, exec *fleetsim.ScriptedExecutor, pm *fleetsim.ScriptedPackageManager) (*Machine, *broadcast.Broadcaster) {
	t.Helper()
	bus := broadcast.New(16)
	identity := config.HostIdentity{Name: "web-1", Address: "10.0.0.5", Policy: config.Policy{AutoReboot: true}}
	m, err := New(identity, exec, pm, nil, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Stop(StopGraceful) })
	return m, bus
}

func TestQueryInventoryNoUpdatesReturnsToIdle(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)

	m, _ := newTestMachine(t, exec, pm)
	res, err := m.QueryInventory(context.Background())
	if err != nil {
		t.Fatalf("QueryInventory: %v", err)
	}
	if res.PendingCount != 0 {
		t.Fatalf("PendingCount = %d, want 0", res.PendingCount)
	}
	state, _ := m.GetState(context.Background())
	if state != StateIdle {
		t.Fatalf("state = %v, want idle", state)
	}
}

func TestQueryInventoryWithUpdatesEntersPending(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)
	pm.Upgradable = []pkgmanager.Upgradable{{Name: "curl"}, {Name: "vim"}}

	m, _ := newTestMachine(t, exec, pm)
	res, err := m.QueryInventory(context.Background())
	if err != nil {
		t.Fatalf("QueryInventory: %v", err)
	}
	if res.PendingCount != 2 {
		t.Fatalf("PendingCount = %d, want 2", res.PendingCount)
	}
	state, _ := m.GetState(context.Background())
	if state != StatePendingUpdates {
		t.Fatalf("state = %v, want pending_updates", state)
	}
}

func TestQueryInventoryFailureEntersFailed(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)
	pm.UpgradableErr = pkgmanager.ErrRepositoryUnavailable

	m, _ := newTestMachine(t, exec, pm)
	_, err := m.QueryInventory(context.Background())
	if err == nil {
		t.Fatal("QueryInventory() error = nil, want ErrRepositoryUnavailable")
	}
	state, _ := m.GetState(context.Background())
	if state != StateFailed {
		t.Fatalf("state = %v, want failed", state)
	}
	status, _ := m.GetStatus(context.Background())
	if status.Failure == nil || status.Failure.PreviousState != StateQuerying {
		t.Fatalf("Failure = %+v, want PreviousState=querying", status.Failure)
	}
	if status.TotalFailures != 1 {
		t.Fatalf("TotalFailures = %d, want 1", status.TotalFailures)
	}
}

func TestStartUpdateFromIdleSettlesToIdle(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)
	m, _ := newTestMachine(t, exec, pm)

	if _, err := m.StartUpdate(context.Background(), false); err != nil {
		t.Fatalf("StartUpdate from idle: %v", err)
	}
	state, _ := m.GetState(context.Background())
	if state != StateIdle {
		t.Fatalf("state = %v, want idle (no reboot required)", state)
	}
}

func TestStartUpdateRebootRequiredWaitsForReboot(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)
	pm.RebootNeeded = true

	m, _ := newTestMachine(t, exec, pm)
	res, err := m.StartUpdate(context.Background(), false)
	if err != nil {
		t.Fatalf("StartUpdate: %v", err)
	}
	if !res.RebootRequired {
		t.Fatal("RebootRequired = false, want true")
	}
	state, _ := m.GetState(context.Background())
	if state != StateWaitingReboot {
		t.Fatalf("state = %v, want waiting_reboot", state)
	}
}

func TestStartUpdateDryRunSkipsReboot(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)
	pm.RebootNeeded = true

	m, _ := newTestMachine(t, exec, pm)
	_, err := m.StartUpdate(context.Background(), true)
	if err != nil {
		t.Fatalf("StartUpdate: %v", err)
	}
	state, _ := m.GetState(context.Background())
	if state != StateIdle {
		t.Fatalf("state = %v, want idle (dry run never waits for reboot)", state)
	}
	if pm.DryRunCalls != 1 || pm.UpgradeAllCalls != 0 {
		t.Fatalf("DryRunCalls=%d UpgradeAllCalls=%d, want 1,0", pm.DryRunCalls, pm.UpgradeAllCalls)
	}
}

func TestFullRebootAndVerifyCycle(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor().
		WithStatus("reboot", 0, "", "").
		WithStatus("echo ok", 0, "ok\n", "")
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)
	pm.RebootNeeded = true

	m, _ := newTestMachine(t, exec, pm)
	if _, err := m.StartUpdate(context.Background(), false); err != nil {
		t.Fatalf("StartUpdate: %v", err)
	}

	rebooted, err := m.RebootIfRequired(context.Background())
	if err != nil {
		t.Fatalf("RebootIfRequired: %v", err)
	}
	if !rebooted {
		t.Fatal("rebooted = false, want true")
	}
	state, _ := m.GetState(context.Background())
	if state != StateVerifying {
		t.Fatalf("state = %v, want verifying", state)
	}

	healthy, err := m.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if !healthy {
		t.Fatal("healthy = false, want true")
	}
	state, _ = m.GetState(context.Background())
	if state != StateIdle {
		t.Fatalf("state = %v, want idle", state)
	}
}

func TestRebootIfRequiredRespectsPolicy(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)
	pm.RebootNeeded = true

	bus := broadcast.New(16)
	identity := config.HostIdentity{Name: "web-1", Address: "10.0.0.5", Policy: config.Policy{AutoReboot: false}}
	m, err := New(identity, exec, pm, nil, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Stop(StopGraceful) })

	if _, err := m.StartUpdate(context.Background(), false); err != nil {
		t.Fatalf("StartUpdate: %v", err)
	}
	rebooted, err := m.RebootIfRequired(context.Background())
	if err != nil {
		t.Fatalf("RebootIfRequired: %v", err)
	}
	if rebooted {
		t.Fatal("rebooted = true, want false (policy forbids auto reboot)")
	}
	state, _ := m.GetState(context.Background())
	if state != StateWaitingReboot {
		t.Fatalf("state = %v, want waiting_reboot (no transition on policy refusal)", state)
	}
}

func TestRetryClearsFailureAndReturnsToIdle(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)
	pm.UpgradableErr = pkgmanager.ErrRepositoryUnavailable

	m, _ := newTestMachine(t, exec, pm)
	if _, err := m.QueryInventory(context.Background()); err == nil {
		t.Fatal("expected query failure")
	}

	if err := m.Retry(context.Background()); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	state, _ := m.GetState(context.Background())
	if state != StateIdle {
		t.Fatalf("state = %v, want idle", state)
	}
	status, _ := m.GetStatus(context.Background())
	if status.Failure != nil {
		t.Fatalf("Failure = %+v, want nil after retry", status.Failure)
	}
}

func TestAcknowledgeDoesNotClearFailure(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)
	pm.UpgradableErr = pkgmanager.ErrRepositoryUnavailable

	m, _ := newTestMachine(t, exec, pm)
	if _, err := m.QueryInventory(context.Background()); err == nil {
		t.Fatal("expected query failure")
	}

	if err := m.Acknowledge(context.Background()); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	state, _ := m.GetState(context.Background())
	if state != StateFailed {
		t.Fatalf("state = %v, want failed (acknowledge never transitions)", state)
	}
	status, _ := m.GetStatus(context.Background())
	if status.Failure == nil || !status.Failure.Acknowledged {
		t.Fatalf("Failure = %+v, want Acknowledged=true", status.Failure)
	}
}

func TestLifecycleEventsEmitConnectedAndDisconnected(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)
	bus := broadcast.New(16)
	sub := bus.Subscribe()

	identity := config.HostIdentity{Name: "web-1", Address: "10.0.0.5"}
	m, err := New(identity, exec, pm, nil, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, _, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv (connected): %v", err)
	}
	if ev.Kind != "host_connected" {
		t.Fatalf("Kind = %v, want host_connected", ev.Kind)
	}

	m.Stop(StopGraceful)
	ev, _, err = sub.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv (disconnected): %v", err)
	}
	if ev.Kind != "host_disconnected" || ev.Reason != string(StopGraceful) {
		t.Fatalf("ev = %+v, want host_disconnected with reason %v", ev, StopGraceful)
	}
}

func TestRetryFromIdleRejected(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	pm := fleetsim.NewScriptedPackageManager(pkgmanager.KindAPT)
	m, _ := newTestMachine(t, exec, pm)

	if err := m.Retry(context.Background()); err == nil {
		t.Fatal("Retry from idle = nil error, want InvalidTransition")
	}
}
