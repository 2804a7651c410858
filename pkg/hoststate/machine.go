// SPDX-License-Identifier: BSD-3-Clause

package hoststate

import (
	"context"
	"errors"

	"github.com/tendhost/tendhost/pkg/inventory"
	"github.com/tendhost/tendhost/pkg/pkgmanager"
)

// ErrStopped is returned by every operation once the machine has been
// stopped.
var ErrStopped = errors.New("host machine stopped")

func (m *Machine) call(ctx context.Context, op operation, args ...any) (response, error) {
	reply := make(chan response, 1)
	req := request{op: op, args: append([]any{ctx}, args...), reply: reply}

	select {
	case <-m.done:
		return response{}, ErrStopped
	default:
	}

	select {
	case m.mailbox <- req:
	case <-m.done:
		return response{}, ErrStopped
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res, res.err
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// QueryInventory asks the package manager for upgradable packages and
// drives the Idle/PendingUpdates/Querying/Failed transitions.
func (m *Machine) QueryInventory(ctx context.Context) (InventoryResult, error) {
	res, err := m.call(ctx, opQueryInventory)
	return res.inventoryResult, err
}

// StartUpdate applies (or simulates, if dryRun) every available upgrade.
func (m *Machine) StartUpdate(ctx context.Context, dryRun bool) (pkgmanager.UpdateResult, error) {
	res, err := m.call(ctx, opStartUpdate, dryRun)
	return res.updateResult, err
}

// RebootIfRequired issues a reboot when the machine is waiting on one and
// policy permits it.
func (m *Machine) RebootIfRequired(ctx context.Context) (bool, error) {
	res, err := m.call(ctx, opRebootIfRequired)
	return res.rebooted, err
}

// HealthCheck runs a trivial remote command, driving Verifying's exit
// transition when applicable.
func (m *Machine) HealthCheck(ctx context.Context) (bool, error) {
	res, err := m.call(ctx, opHealthCheck)
	return res.healthy, err
}

// Retry clears a failed host's failure context and returns it to Idle.
func (m *Machine) Retry(ctx context.Context) error {
	_, err := m.call(ctx, opRetry)
	return err
}

// Acknowledge marks a failed host's failure as seen without clearing it.
func (m *Machine) Acknowledge(ctx context.Context) error {
	_, err := m.call(ctx, opAcknowledge)
	return err
}

// GetState returns the machine's current state. A pure read; it never
// transitions.
func (m *Machine) GetState(ctx context.Context) (State, error) {
	res, err := m.call(ctx, opGetState)
	return res.state, err
}

// GetStatus returns a full point-in-time snapshot of the host.
func (m *Machine) GetStatus(ctx context.Context) (Status, error) {
	res, err := m.call(ctx, opGetStatus)
	return res.status, err
}

// CollectInventory runs the richer osquery-backed snapshot (spec §4.6).
// Unlike QueryInventory, this never drives a state transition.
func (m *Machine) CollectInventory(ctx context.Context) (inventory.Snapshot, error) {
	res, err := m.call(ctx, opCollectInventory)
	return res.snapshot, err
}

// Stop gracefully shuts the machine down: it signals the mailbox
// goroutine to exit once it finishes whatever operation is currently
// in flight, which is the one that emits host_disconnected (see run).
// Further calls return ErrStopped.
func (m *Machine) Stop(reason StopReason) {
	select {
	case <-m.done:
		return
	default:
	}
	m.stopReason = reason
	close(m.done)
}

// Identity returns the name and tags of the host identity this machine
// was constructed with.
func (m *Machine) Identity() identitySnapshot {
	return identitySnapshot{Name: m.identity.Name, Tags: append([]string(nil), m.identity.Tags...)}
}

// identitySnapshot is a read-only view of a host's identity, safe to hand
// to callers outside the machine's own goroutine since it never changes
// after construction.
type identitySnapshot struct {
	Name string
	Tags []string
}
