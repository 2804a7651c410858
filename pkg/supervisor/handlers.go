// SPDX-License-Identifier: BSD-3-Clause

package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/arunsworld/nursery"

	"github.com/tendhost/tendhost/pkg/config"
	"github.com/tendhost/tendhost/pkg/hoststate"
	"github.com/tendhost/tendhost/pkg/inventory"
)

func (s *Supervisor) handle(req supervisorRequest) supervisorResponse {
	switch req.op {
	case opRegister:
		return s.doRegister(req.ctx, req.identity)
	case opUnregister:
		return s.doUnregister(req.host)
	case opGetStatus:
		return s.forward(req.ctx, req.host, func(m *hoststate.Machine) supervisorResponse {
			status, err := m.GetStatus(req.ctx)
			return supervisorResponse{status: status, err: err}
		})
	case opListHosts:
		return s.doListHosts()
	case opQueryInventory:
		return s.forward(req.ctx, req.host, func(m *hoststate.Machine) supervisorResponse {
			res, err := m.QueryInventory(req.ctx)
			return supervisorResponse{inventory: res, err: err}
		})
	case opStartUpdate:
		return s.forward(req.ctx, req.host, func(m *hoststate.Machine) supervisorResponse {
			res, err := m.StartUpdate(req.ctx, req.dryRun)
			return supervisorResponse{updateResult: res, err: err}
		})
	case opRetry:
		return s.forward(req.ctx, req.host, func(m *hoststate.Machine) supervisorResponse {
			return supervisorResponse{err: m.Retry(req.ctx)}
		})
	case opAcknowledge:
		return s.forward(req.ctx, req.host, func(m *hoststate.Machine) supervisorResponse {
			return supervisorResponse{err: m.Acknowledge(req.ctx)}
		})
	case opFleetUpdate:
		return s.doFleetUpdate(req.ctx, req.fleetCfg)
	case opStopAll:
		return s.doStopAll()
	default:
		return supervisorResponse{err: fmt.Errorf("unknown supervisor operation %d", req.op)}
	}
}

func (s *Supervisor) doRegister(ctx context.Context, identity config.HostIdentity) supervisorResponse {
	if _, exists := s.registry[identity.Name]; exists {
		return supervisorResponse{err: ErrHostAlreadyExists}
	}

	exec, err := s.factory.CreateExecutor(identity)
	if err != nil {
		return supervisorResponse{err: fmt.Errorf("creating executor for %s: %w", identity.Name, err)}
	}
	pm, err := s.factory.CreatePackageManager(ctx, identity, exec)
	if err != nil {
		return supervisorResponse{err: fmt.Errorf("creating package manager for %s: %w", identity.Name, err)}
	}

	var collector *inventory.Collector
	if s.collectorTTL > 0 {
		collector = inventory.NewCollector(exec, s.collectorTTL)
	}

	machine, err := hoststate.New(identity, exec, pm, collector, s.broadcast)
	if err != nil {
		return supervisorResponse{err: fmt.Errorf("starting host machine for %s: %w", identity.Name, err)}
	}

	s.registry[identity.Name] = &entry{machine: machine, identity: identity}
	return supervisorResponse{}
}

func (s *Supervisor) doUnregister(host string) supervisorResponse {
	e, ok := s.registry[host]
	if !ok {
		return supervisorResponse{err: ErrHostNotFound}
	}
	e.machine.Stop(hoststate.StopGraceful)
	delete(s.registry, host)
	return supervisorResponse{}
}

func (s *Supervisor) doListHosts() supervisorResponse {
	hosts := make([]string, 0, len(s.registry))
	for name := range s.registry {
		hosts = append(hosts, name)
	}
	return supervisorResponse{hosts: hosts}
}

func (s *Supervisor) doStopAll() supervisorResponse {
	for name, e := range s.registry {
		e.machine.Stop(hoststate.StopShutdown)
		delete(s.registry, name)
	}
	return supervisorResponse{}
}

// forward looks up host in the registry and invokes fn against its
// machine, translating a missing or stopped machine into
// ErrHostNotFound.
func (s *Supervisor) forward(ctx context.Context, host string, fn func(*hoststate.Machine) supervisorResponse) supervisorResponse {
	e, ok := s.registry[host]
	if !ok {
		return supervisorResponse{err: ErrHostNotFound}
	}
	res := fn(e.machine)
	if res.err == hoststate.ErrStopped {
		res.err = ErrHostNotFound
	}
	return res
}

func (s *Supervisor) doFleetUpdate(ctx context.Context, cfg FleetConfig) supervisorResponse {
	eligible := s.eligibleHosts(cfg.Filter)
	batches := batch(eligible, cfg.BatchSize)

	summary := ProgressSummary{Results: make(map[string]string, len(eligible))}

	for i, b := range batches {
		jobs := make([]nursery.ConcurrentJob, len(b))
		results := make([]error, len(b))
		start := time.Now()
		for idx, host := range b {
			idx, host := idx, host
			jobs[idx] = func(jobCtx context.Context, errChan chan error) {
				results[idx] = s.runFleetHost(jobCtx, host, cfg.DryRun)
			}
		}
		_ = nursery.RunConcurrentlyWithContext(ctx, jobs...)

		failed := 0
		for idx, host := range b {
			if results[idx] != nil {
				failed++
				summary.Failed++
				summary.Results[host] = results[idx].Error()
			} else {
				summary.Completed++
				summary.Results[host] = "ok"
			}
		}
		s.recordFleetBatch(ctx, i, len(b), failed, time.Since(start))

		if i < len(batches)-1 && cfg.InterBatchDelay > 0 {
			time.Sleep(cfg.InterBatchDelay)
		}
	}

	return supervisorResponse{summary: summary}
}

// runFleetHost runs query-inventory then start-update against one host,
// as the fleet operation dispatches them. A host already busy with its
// own operation rejects the request; that counts as a failure for this
// host but does not stop the fleet.
func (s *Supervisor) runFleetHost(ctx context.Context, host string, dryRun bool) error {
	e, ok := s.registry[host]
	if !ok {
		return ErrHostNotFound
	}
	if _, err := e.machine.QueryInventory(ctx); err != nil {
		return err
	}
	if _, err := e.machine.StartUpdate(ctx, dryRun); err != nil {
		return err
	}
	return nil
}

func batch(hosts []string, size int) [][]string {
	if size <= 0 {
		size = len(hosts)
	}
	if size == 0 {
		return nil
	}
	var batches [][]string
	for i := 0; i < len(hosts); i += size {
		end := i + size
		if end > len(hosts) {
			end = len(hosts)
		}
		batches = append(batches, hosts[i:end])
	}
	return batches
}
