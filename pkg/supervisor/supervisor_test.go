// SPDX-License-Identifier: BSD-3-Clause

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tendhost/tendhost/internal/fleetsim"
	"github.com/tendhost/tendhost/pkg/broadcast"
	"github.com/tendhost/tendhost/pkg/config"
	"github.com/tendhost/tendhost/pkg/hoststate"
	"github.com/tendhost/tendhost/pkg/pkgmanager"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *fleetsim.Factory) {
	t.Helper()
	factory := fleetsim.NewFactory()
	bus := broadcast.New(16)
	s := New(factory, bus, nil, 0)
	t.Cleanup(s.Stop)
	return s, factory
}

func TestRegisterAndGetStatus(t *testing.T) {
	s, _ := newTestSupervisor(t)
	ctx := context.Background()

	if err := s.Register(ctx, config.HostIdentity{Name: "web-1", Address: "10.0.0.5"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	status, err := s.GetStatus(ctx, "web-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.State != hoststate.StateIdle {
		t.Fatalf("State = %v, want idle", status.State)
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	s, _ := newTestSupervisor(t)
	ctx := context.Background()
	identity := config.HostIdentity{Name: "web-1", Address: "10.0.0.5"}

	if err := s.Register(ctx, identity); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := s.Register(ctx, identity); !errors.Is(err, ErrHostAlreadyExists) {
		t.Fatalf("second Register error = %v, want ErrHostAlreadyExists", err)
	}
}

func TestUnregisterMissingHost(t *testing.T) {
	s, _ := newTestSupervisor(t)
	if err := s.Unregister(context.Background(), "ghost"); !errors.Is(err, ErrHostNotFound) {
		t.Fatalf("Unregister error = %v, want ErrHostNotFound", err)
	}
}

func TestUnregisterRemovesFromListing(t *testing.T) {
	s, _ := newTestSupervisor(t)
	ctx := context.Background()
	if err := s.Register(ctx, config.HostIdentity{Name: "web-1", Address: "10.0.0.5"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Unregister(ctx, "web-1"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	hosts, err := s.ListHosts(ctx)
	if err != nil {
		t.Fatalf("ListHosts: %v", err)
	}
	if len(hosts) != 0 {
		t.Fatalf("ListHosts = %v, want empty", hosts)
	}
}

func TestForwardedOperationMissingHostIsHostNotFound(t *testing.T) {
	s, _ := newTestSupervisor(t)
	if _, err := s.QueryInventory(context.Background(), "ghost"); !errors.Is(err, ErrHostNotFound) {
		t.Fatalf("QueryInventory error = %v, want ErrHostNotFound", err)
	}
}

func TestFleetUpdateFiltersByTagAnyOf(t *testing.T) {
	s, factory := newTestSupervisor(t)
	ctx := context.Background()

	if err := s.Register(ctx, config.HostIdentity{Name: "web-1", Address: "10.0.0.5", Tags: []string{"web"}}); err != nil {
		t.Fatalf("Register web-1: %v", err)
	}
	if err := s.Register(ctx, config.HostIdentity{Name: "db-1", Address: "10.0.0.6", Tags: []string{"db"}}); err != nil {
		t.Fatalf("Register db-1: %v", err)
	}

	summary, err := s.FleetUpdate(ctx, FleetConfig{
		BatchSize: 10,
		Filter:    Filter{IncludeTags: []string{"web", "canary"}},
	})
	if err != nil {
		t.Fatalf("FleetUpdate: %v", err)
	}
	if summary.Completed != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want Completed=1 Failed=0", summary)
	}
	if _, ok := summary.Results["web-1"]; !ok {
		t.Fatalf("Results missing web-1: %+v", summary.Results)
	}
	if _, ok := summary.Results["db-1"]; ok {
		t.Fatalf("Results should not include filtered-out db-1: %+v", summary.Results)
	}
	_ = factory
}

func TestFleetUpdateBatchesSequentially(t *testing.T) {
	s, _ := newTestSupervisor(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		if err := s.Register(ctx, config.HostIdentity{Name: name, Address: "10.0.0." + name}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	start := time.Now()
	summary, err := s.FleetUpdate(ctx, FleetConfig{BatchSize: 1, InterBatchDelay: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("FleetUpdate: %v", err)
	}
	if summary.Completed != 3 {
		t.Fatalf("Completed = %d, want 3", summary.Completed)
	}
	// 3 hosts at batch size 1 means 2 inter-batch sleeps, none after the
	// last batch.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("elapsed = %v, want at least 2 inter-batch delays", elapsed)
	}
}

func TestFleetUpdateFailingHostCountsAsFailedButContinues(t *testing.T) {
	s, factory := newTestSupervisor(t)
	ctx := context.Background()
	if err := s.Register(ctx, config.HostIdentity{Name: "ok-1", Address: "10.0.0.5"}); err != nil {
		t.Fatalf("Register ok-1: %v", err)
	}
	if err := s.Register(ctx, config.HostIdentity{Name: "bad-1", Address: "10.0.0.6"}); err != nil {
		t.Fatalf("Register bad-1: %v", err)
	}
	factory.PackageManagers["bad-1"].UpgradableErr = pkgmanager.ErrRepositoryUnavailable

	summary, err := s.FleetUpdate(ctx, FleetConfig{BatchSize: 10})
	if err != nil {
		t.Fatalf("FleetUpdate: %v", err)
	}
	if summary.Completed != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want Completed=1 Failed=1", summary)
	}
}
