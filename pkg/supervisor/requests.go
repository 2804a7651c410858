// SPDX-License-Identifier: BSD-3-Clause

package supervisor

import (
	"context"

	"github.com/tendhost/tendhost/pkg/config"
	"github.com/tendhost/tendhost/pkg/hoststate"
	"github.com/tendhost/tendhost/pkg/pkgmanager"
)

type supervisorOp int

const (
	opRegister supervisorOp = iota
	opUnregister
	opGetStatus
	opListHosts
	opQueryInventory
	opStartUpdate
	opRetry
	opAcknowledge
	opFleetUpdate
	opStopAll
)

type supervisorRequest struct {
	op       supervisorOp
	ctx      context.Context
	host     string
	identity config.HostIdentity
	dryRun   bool
	fleetCfg FleetConfig
	reply    chan supervisorResponse
}

type supervisorResponse struct {
	hosts        []string
	status       hoststate.Status
	inventory    hoststate.InventoryResult
	updateResult pkgmanager.UpdateResult
	summary      ProgressSummary
	err          error
}

func (s *Supervisor) dispatch(ctx context.Context, req supervisorRequest) (supervisorResponse, error) {
	req.ctx = ctx
	req.reply = make(chan supervisorResponse, 1)

	select {
	case <-s.done:
		return supervisorResponse{}, ErrSupervisorStopped
	default:
	}

	select {
	case s.mailbox <- req:
	case <-s.done:
		return supervisorResponse{}, ErrSupervisorStopped
	case <-ctx.Done():
		return supervisorResponse{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res, res.err
	case <-ctx.Done():
		return supervisorResponse{}, ctx.Err()
	}
}

// Register constructs the host's executor and package manager via the
// factory, spawns its machine, and records it in the registry. Fails
// with ErrHostAlreadyExists if the name is taken.
func (s *Supervisor) Register(ctx context.Context, identity config.HostIdentity) error {
	_, err := s.dispatch(ctx, supervisorRequest{op: opRegister, identity: identity})
	return err
}

// Unregister stops the host's machine gracefully and removes it from the
// registry. Fails with ErrHostNotFound if absent.
func (s *Supervisor) Unregister(ctx context.Context, host string) error {
	_, err := s.dispatch(ctx, supervisorRequest{op: opUnregister, host: host})
	return err
}

// GetStatus forwards to the named host's machine.
func (s *Supervisor) GetStatus(ctx context.Context, host string) (hoststate.Status, error) {
	res, err := s.dispatch(ctx, supervisorRequest{op: opGetStatus, host: host})
	return res.status, err
}

// ListHosts returns every registered host name.
func (s *Supervisor) ListHosts(ctx context.Context) ([]string, error) {
	res, err := s.dispatch(ctx, supervisorRequest{op: opListHosts})
	return res.hosts, err
}

// QueryInventory forwards to the named host's machine.
func (s *Supervisor) QueryInventory(ctx context.Context, host string) (hoststate.InventoryResult, error) {
	res, err := s.dispatch(ctx, supervisorRequest{op: opQueryInventory, host: host})
	return res.inventory, err
}

// StartUpdate forwards to the named host's machine.
func (s *Supervisor) StartUpdate(ctx context.Context, host string, dryRun bool) (pkgmanager.UpdateResult, error) {
	res, err := s.dispatch(ctx, supervisorRequest{op: opStartUpdate, host: host, dryRun: dryRun})
	return res.updateResult, err
}

// Retry forwards to the named host's machine.
func (s *Supervisor) Retry(ctx context.Context, host string) error {
	_, err := s.dispatch(ctx, supervisorRequest{op: opRetry, host: host})
	return err
}

// Acknowledge forwards to the named host's machine.
func (s *Supervisor) Acknowledge(ctx context.Context, host string) error {
	_, err := s.dispatch(ctx, supervisorRequest{op: opAcknowledge, host: host})
	return err
}

// FleetUpdate runs a batched, filtered update across the registered
// hosts per spec §4.2.
func (s *Supervisor) FleetUpdate(ctx context.Context, cfg FleetConfig) (ProgressSummary, error) {
	res, err := s.dispatch(ctx, supervisorRequest{op: opFleetUpdate, fleetCfg: cfg})
	return res.summary, err
}
