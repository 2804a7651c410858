// SPDX-License-Identifier: BSD-3-Clause

// Package supervisor implements spec §4.2: the registry owner that
// creates a host machine on registration, routes host-specific requests
// to the right one, and orchestrates fleet-wide batched updates. The
// registry is single-task-owned, so the supervisor runs as its own
// goroutine with a mailbox rather than guarding a map with a mutex.
package supervisor

import (
	"context"
	"time"

	"github.com/tendhost/tendhost/pkg/broadcast"
	"github.com/tendhost/tendhost/pkg/config"
	"github.com/tendhost/tendhost/pkg/hostdep"
	"github.com/tendhost/tendhost/pkg/hoststate"
)

type entry struct {
	machine  *hoststate.Machine
	identity config.HostIdentity
}

// Supervisor owns the host registry. Construct with New and interact
// only through its exported methods; the registry itself is never
// exposed directly.
type Supervisor struct {
	factory      hostdep.Factory
	broadcast    *broadcast.Broadcaster
	groups       []config.Group
	collectorTTL time.Duration

	registry map[string]*entry
	metrics  *metrics

	mailbox chan supervisorRequest
	done    chan struct{}
}

// New constructs a Supervisor and starts its goroutine. factory is
// accepted at construction and never mutated, per spec §4.3.
func New(factory hostdep.Factory, bus *broadcast.Broadcaster, groups []config.Group, collectorTTL time.Duration) *Supervisor {
	s := &Supervisor{
		factory:      factory,
		broadcast:    bus,
		groups:       groups,
		collectorTTL: collectorTTL,
		registry:     make(map[string]*entry),
		mailbox:      make(chan supervisorRequest, 64),
		done:         make(chan struct{}),
	}
	if mx, err := newMetrics(); err == nil {
		s.metrics = mx
	}
	go s.run()
	return s
}

func (s *Supervisor) run() {
	for {
		select {
		case req := <-s.mailbox:
			req.reply <- s.handle(req)
		case <-s.done:
			return
		}
	}
}

// Stop gracefully stops every registered host machine, then the
// supervisor's own goroutine.
func (s *Supervisor) Stop() {
	select {
	case <-s.done:
		return
	default:
	}

	reply := make(chan supervisorResponse, 1)
	s.mailbox <- supervisorRequest{op: opStopAll, reply: reply}
	<-reply

	close(s.done)
}

func (s *Supervisor) groupNamesFor(host string) []string {
	var names []string
	for _, g := range s.groups {
		for _, h := range g.Hosts {
			if h == host {
				names = append(names, g.Name)
				break
			}
		}
	}
	return names
}

