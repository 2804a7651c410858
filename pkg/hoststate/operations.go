// SPDX-License-Identifier: BSD-3-Clause

package hoststate

import (
	"context"
	"fmt"
	"time"

	"github.com/tendhost/tendhost/pkg/events"
	"github.com/tendhost/tendhost/pkg/fsm"
	"github.com/tendhost/tendhost/pkg/pkgmanager"
)

// run is the mailbox goroutine: it processes exactly one request to
// completion, including every outward executor/pkgmanager call, before
// reading the next. This is the "one outward I/O call per host at a
// time" guarantee spec §4.1 and §5 require.
func (m *Machine) run() {
	for {
		select {
		case req := <-m.mailbox:
			req.reply <- m.handle(req)
		case <-m.done:
			m.broadcast.Publish(events.HostDisconnected(m.identity.Name, string(m.stopReason)))
			return
		}
	}
}

func (m *Machine) handle(req request) response {
	ctx, _ := req.args[0].(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}

	switch req.op {
	case opQueryInventory:
		return m.doQueryInventory(ctx)
	case opStartUpdate:
		dryRun, _ := req.args[1].(bool)
		return m.doStartUpdate(ctx, dryRun)
	case opRebootIfRequired:
		return m.doRebootIfRequired(ctx)
	case opHealthCheck:
		return m.doHealthCheck(ctx)
	case opRetry:
		return m.doRetry()
	case opAcknowledge:
		return m.doAcknowledge()
	case opGetState:
		return response{state: State(m.machine.CurrentState())}
	case opGetStatus:
		return response{status: m.snapshotStatus()}
	case opCollectInventory:
		return m.doCollectInventory(ctx)
	default:
		return response{err: fmt.Errorf("unknown operation %d", req.op)}
	}
}

func (m *Machine) isBusy() bool {
	switch State(m.machine.CurrentState()) {
	case StateQuerying, StateUpdating, StateRebooting, StateVerifying:
		return true
	default:
		return false
	}
}

func (m *Machine) isOperationReady() bool {
	switch State(m.machine.CurrentState()) {
	case StateIdle, StatePendingUpdates:
		return true
	default:
		return false
	}
}

func (m *Machine) doQueryInventory(ctx context.Context) response {
	if m.isBusy() {
		return response{err: &fsm.InvalidTransition{From: m.machine.CurrentState(), To: m.machine.TargetFor(triggerQueryInventory), Trigger: triggerQueryInventory}}
	}
	if err := m.fire(ctx, triggerQueryInventory); err != nil {
		return response{err: err}
	}

	pkgs, err := m.pkgManager.ListUpgradable(ctx)
	if err != nil {
		m.enterFailed(ctx, StateQuerying, err)
		return response{err: err}
	}

	names := make([]string, len(pkgs))
	for i, p := range pkgs {
		names[i] = p.Name
	}

	if len(pkgs) > 0 {
		m.pending = &PendingUpdateContext{Count: len(pkgs), Names: names, QueriedAt: time.Now()}
		if err := m.fire(ctx, triggerQueryHasUpdates); err != nil {
			return response{err: err}
		}
	} else {
		if err := m.fire(ctx, triggerQueryNoUpdates); err != nil {
			return response{err: err}
		}
	}

	return response{inventoryResult: InventoryResult{PendingCount: len(pkgs), PackageNames: names}}
}

func (m *Machine) doStartUpdate(ctx context.Context, dryRun bool) response {
	if !m.isOperationReady() {
		return response{err: &fsm.InvalidTransition{From: m.machine.CurrentState(), To: m.machine.TargetFor(triggerStartUpdate), Trigger: triggerStartUpdate}}
	}
	if err := m.fire(ctx, triggerStartUpdate); err != nil {
		return response{err: err}
	}

	var result pkgmanager.UpdateResult
	var err error
	if dryRun {
		result, err = m.pkgManager.UpgradeDryRun(ctx)
	} else {
		result, err = m.pkgManager.UpgradeAll(ctx)
	}
	if err != nil {
		m.enterFailed(ctx, StateUpdating, err)
		return response{err: err}
	}

	rebootRequired, rrErr := m.pkgManager.RebootRequired(ctx)
	if rrErr != nil {
		m.enterFailed(ctx, StateUpdating, rrErr)
		return response{err: rrErr}
	}
	result.RebootRequired = rebootRequired

	if rebootRequired && !dryRun {
		if err := m.fire(ctx, triggerUpdateNeedsReboot); err != nil {
			return response{err: err}
		}
	} else {
		m.pending = nil
		now := time.Now()
		m.lastUpdated = &now
		if err := m.fire(ctx, triggerUpdateSettled); err != nil {
			return response{err: err}
		}
	}

	m.broadcast.Publish(events.UpdateCompleted(m.identity.Name, updateSummary(result, dryRun)))

	return response{updateResult: result}
}

func updateSummary(res pkgmanager.UpdateResult, dryRun bool) string {
	note := ""
	if dryRun {
		note = " (dry_run=true)"
	}
	if !res.Success {
		return fmt.Sprintf("update failed: %s%s", res.Error, note)
	}
	return fmt.Sprintf("upgraded=%d installed=%d removed=%d reboot_required=%t%s",
		res.UpgradedCount, res.InstalledCount, res.RemovedCount, res.RebootRequired, note)
}

// doRebootIfRequired implements spec §4.1's reboot-if-required operation.
// It is only legal from StateWaitingReboot; if the host's policy disables
// auto-reboot it reports "not rebooted" without transitioning.
func (m *Machine) doRebootIfRequired(ctx context.Context) response {
	if State(m.machine.CurrentState()) != StateWaitingReboot {
		return response{err: &fsm.InvalidTransition{From: m.machine.CurrentState(), To: m.machine.TargetFor(triggerRebootIfRequired), Trigger: triggerRebootIfRequired}}
	}
	if !m.identity.Policy.AutoReboot {
		return response{rebooted: false}
	}
	if err := m.fire(ctx, triggerRebootIfRequired); err != nil {
		return response{err: err}
	}

	_, err := m.exec.Run(ctx, "reboot")
	if err != nil {
		m.enterFailed(ctx, StateRebooting, err)
		return response{err: err}
	}
	if err := m.fire(ctx, triggerRebootAccepted); err != nil {
		return response{err: err}
	}
	return response{rebooted: true}
}

// doHealthCheck implements spec §4.1's health-check operation: it always
// runs the trivial remote command, but only drives a transition when the
// machine is currently in StateVerifying.
func (m *Machine) doHealthCheck(ctx context.Context) response {
	res, err := m.exec.Run(ctx, "echo ok")
	healthy := err == nil && res.Status == 0

	if State(m.machine.CurrentState()) != StateVerifying {
		return response{healthy: healthy, err: err}
	}

	if healthy {
		m.pending = nil
		now := time.Now()
		m.lastUpdated = &now
		if fireErr := m.fire(ctx, triggerHealthCheckPassed); fireErr != nil {
			return response{err: fireErr}
		}
		return response{healthy: true}
	}

	failErr := err
	if failErr == nil {
		failErr = fmt.Errorf("health check failed: status %d: %s", res.Status, res.Stderr)
	}
	m.enterFailed(ctx, StateVerifying, failErr)
	return response{healthy: false, err: failErr}
}

// doRetry implements spec §4.1's retry operation: legal only from
// StateFailed, it increments the retry counter, clears the failure
// context, and transitions back to StateIdle for a fresh attempt.
func (m *Machine) doRetry() response {
	if State(m.machine.CurrentState()) != StateFailed || m.failure == nil {
		return response{err: &fsm.InvalidTransition{From: m.machine.CurrentState(), To: m.machine.TargetFor(triggerRetry), Trigger: triggerRetry}}
	}
	m.failure.RetryCount++
	m.failure = nil

	if err := m.fire(context.Background(), triggerRetry); err != nil {
		return response{err: err}
	}
	return response{}
}

// doAcknowledge implements spec §4.1's acknowledge operation: purely
// informational, it marks the failure seen without clearing or
// transitioning.
func (m *Machine) doAcknowledge() response {
	if State(m.machine.CurrentState()) != StateFailed || m.failure == nil {
		return response{err: &fsm.InvalidTransition{From: m.machine.CurrentState(), To: m.machine.TargetFor("acknowledge"), Trigger: "acknowledge"}}
	}
	m.failure.Acknowledged = true
	return response{}
}

// enterFailed records the failure context and drives the machine into
// StateFailed, preserving the state it failed from.
func (m *Machine) enterFailed(ctx context.Context, from State, cause error) {
	m.failure = &FailureContext{
		PreviousState: from,
		Error:         cause.Error(),
		FailedAt:      time.Now(),
		RetryCount:    0,
		Acknowledged:  false,
	}
	m.totalFailures++

	trigger := triggerFor(from)
	_ = m.fire(ctx, trigger)
}

func triggerFor(from State) string {
	switch from {
	case StateQuerying:
		return triggerQueryFailed
	case StateUpdating:
		return triggerUpdateFailed
	case StateRebooting:
		return triggerRebootFailed
	case StateVerifying:
		return triggerHealthCheckFailed
	default:
		return triggerQueryFailed
	}
}

// doCollectInventory runs the full osquery-backed snapshot (spec §4.6),
// independent of the state machine's own transitions: it never moves the
// machine out of whatever state it is in.
func (m *Machine) doCollectInventory(ctx context.Context) response {
	if m.collector == nil {
		return response{err: fmt.Errorf("host %s has no inventory collector configured", m.identity.Name)}
	}
	snap, err := m.collector.Collect(ctx)
	return response{snapshot: snap, err: err}
}

func (m *Machine) snapshotStatus() Status {
	return Status{
		Name:          m.identity.Name,
		State:         State(m.machine.CurrentState()),
		Pending:       m.pending,
		Failure:       m.failure,
		LastUpdated:   m.lastUpdated,
		TotalFailures: m.totalFailures,
	}
}
