// SPDX-License-Identifier: BSD-3-Clause

// Package hoststate implements the per-host state machine of spec §4.1: a
// goroutine that owns a single host's remote executor and package
// manager, serializes every operation targeting that host through a
// bounded mailbox, and drives the 8-state transition table built on
// pkg/fsm.
package hoststate

import (
	"context"
	"fmt"
	"time"

	"github.com/tendhost/tendhost/pkg/broadcast"
	"github.com/tendhost/tendhost/pkg/config"
	"github.com/tendhost/tendhost/pkg/events"
	"github.com/tendhost/tendhost/pkg/executor"
	"github.com/tendhost/tendhost/pkg/fsm"
	"github.com/tendhost/tendhost/pkg/inventory"
	"github.com/tendhost/tendhost/pkg/pkgmanager"
)

// State names one of the eight host states, exactly as spec §4.1 names
// them; these are also the wire strings spec §6 requires.
type State string

const (
	StateIdle           State = "idle"
	StateQuerying       State = "querying"
	StatePendingUpdates State = "pending_updates"
	StateUpdating       State = "updating"
	StateWaitingReboot  State = "waiting_reboot"
	StateRebooting      State = "rebooting"
	StateVerifying      State = "verifying"
	StateFailed         State = "failed"
)

const (
	triggerQueryInventory    = "query_inventory"
	triggerQueryHasUpdates   = "query_has_updates"
	triggerQueryNoUpdates    = "query_no_updates"
	triggerQueryFailed       = "query_failed"
	triggerStartUpdate       = "start_update"
	triggerUpdateNeedsReboot = "update_needs_reboot"
	triggerUpdateSettled     = "update_settled"
	triggerUpdateFailed      = "update_failed"
	triggerRebootIfRequired  = "reboot_if_required"
	triggerRebootAccepted    = "reboot_accepted"
	triggerRebootFailed      = "reboot_failed"
	triggerHealthCheckPassed = "health_check_passed"
	triggerHealthCheckFailed = "health_check_failed"
	triggerRetry             = "retry"
)

// PendingUpdateContext is present iff the machine is in
// StatePendingUpdates (spec §3.1).
type PendingUpdateContext struct {
	Count     int
	Names     []string
	QueriedAt time.Time
}

// FailureContext is present iff the machine is in StateFailed (spec
// §3.1). A second failure before retry overwrites it; there is no
// history beyond the one record.
type FailureContext struct {
	PreviousState State
	Error         string
	FailedAt      time.Time
	RetryCount    int
	Acknowledged  bool
}

// Status is a point-in-time read of everything exposed about a host.
type Status struct {
	Name          string
	State         State
	Pending       *PendingUpdateContext
	Failure       *FailureContext
	LastUpdated   *time.Time
	TotalFailures int
}

// StopReason names why a Machine's goroutine exited, carried on the
// host-disconnected event.
type StopReason string

const (
	StopGraceful StopReason = "unregistered"
	StopShutdown StopReason = "shutdown"
)

// Machine is one host's state machine and mailbox. It owns its executor
// and package manager exclusively for its lifetime; nothing outside the
// machine touches them.
type Machine struct {
	identity   config.HostIdentity
	exec       executor.Executor
	pkgManager pkgmanager.PackageManager
	collector  *inventory.Collector
	broadcast  *broadcast.Broadcaster

	machine *fsm.FSM
	metrics *metrics

	pending       *PendingUpdateContext
	failure       *FailureContext
	lastUpdated   *time.Time
	totalFailures int

	mailbox    chan request
	done       chan struct{}
	stopReason StopReason
}

type request struct {
	op    operation
	args  []any
	reply chan response
}

type operation int

const (
	opQueryInventory operation = iota
	opStartUpdate
	opRebootIfRequired
	opHealthCheck
	opRetry
	opAcknowledge
	opGetState
	opGetStatus
	opCollectInventory
)

type response struct {
	inventoryResult InventoryResult
	updateResult    pkgmanager.UpdateResult
	healthy         bool
	rebooted        bool
	status          Status
	state           State
	snapshot        inventory.Snapshot
	err             error
}

// InventoryResult is the opaque-to-the-machine summary of a query
// inventory operation (spec §3.4): how many packages are upgradable and
// their names. The richer inventory.Snapshot is available separately
// through the collector and is not interpreted by the machine.
type InventoryResult struct {
	PendingCount int
	PackageNames []string
}

// New constructs a Machine in StateIdle and starts its mailbox goroutine.
// It emits host_connected before accepting requests.
func New(identity config.HostIdentity, exec executor.Executor, pkgManager pkgmanager.PackageManager, collector *inventory.Collector, bus *broadcast.Broadcaster) (*Machine, error) {
	m := &Machine{
		identity:   identity,
		exec:       exec,
		pkgManager: pkgManager,
		collector:  collector,
		broadcast:  bus,
		mailbox:    make(chan request, 16),
		done:       make(chan struct{}),
	}

	f, err := fsm.New(buildConfig(identity.Name, bus))
	if err != nil {
		return nil, fmt.Errorf("building host state machine for %s: %w", identity.Name, err)
	}
	m.machine = f

	mx, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("building host state machine metrics for %s: %w", identity.Name, err)
	}
	m.metrics = mx

	bus.Publish(events.HostConnected(identity.Name))

	go m.run()
	return m, nil
}

func buildConfig(name string, bus *broadcast.Broadcaster) *fsm.Config {
	broadcastCb := func(_ context.Context, machineName, previous, current, _ string) {
		bus.Publish(events.StateChanged(machineName, previous, current))
	}

	return fsm.NewConfig(
		fsm.WithName(name),
		fsm.WithInitialState(string(StateIdle)),
		fsm.WithStates(
			string(StateIdle), string(StateQuerying), string(StatePendingUpdates),
			string(StateUpdating), string(StateWaitingReboot), string(StateRebooting),
			string(StateVerifying), string(StateFailed),
		),
		fsm.WithBroadcast(broadcastCb),
		fsm.WithTracing(true),

		fsm.WithTransition(string(StateIdle), string(StateQuerying), triggerQueryInventory),
		fsm.WithTransition(string(StateQuerying), string(StatePendingUpdates), triggerQueryHasUpdates),
		fsm.WithTransition(string(StateQuerying), string(StateIdle), triggerQueryNoUpdates),
		fsm.WithTransition(string(StateQuerying), string(StateFailed), triggerQueryFailed),

		fsm.WithTransition(string(StateIdle), string(StateUpdating), triggerStartUpdate),
		fsm.WithTransition(string(StatePendingUpdates), string(StateUpdating), triggerStartUpdate),
		fsm.WithTransition(string(StateUpdating), string(StateWaitingReboot), triggerUpdateNeedsReboot),
		fsm.WithTransition(string(StateUpdating), string(StateIdle), triggerUpdateSettled),
		fsm.WithTransition(string(StateUpdating), string(StateFailed), triggerUpdateFailed),

		fsm.WithTransition(string(StateWaitingReboot), string(StateRebooting), triggerRebootIfRequired),
		fsm.WithTransition(string(StateRebooting), string(StateVerifying), triggerRebootAccepted),
		fsm.WithTransition(string(StateRebooting), string(StateFailed), triggerRebootFailed),

		fsm.WithTransition(string(StateVerifying), string(StateIdle), triggerHealthCheckPassed),
		fsm.WithTransition(string(StateVerifying), string(StateFailed), triggerHealthCheckFailed),

		fsm.WithTransition(string(StateFailed), string(StateIdle), triggerRetry),
	)
}
