// SPDX-License-Identifier: BSD-3-Clause

// Package hostdep implements the host-dependency factory of spec §4.3:
// given a host identity, it builds the remote executor and package
// manager the host machine will own for its lifetime. The supervisor
// accepts a Factory at construction and never mutates it, so tests can
// substitute one that returns fleetsim fakes.
package hostdep

import (
	"context"
	"net"
	"strings"

	"github.com/tendhost/tendhost/pkg/config"
	"github.com/tendhost/tendhost/pkg/executor"
	"github.com/tendhost/tendhost/pkg/pkgmanager"
)

// Factory builds the per-host dependencies a host machine needs. It is
// never a package-level singleton; the supervisor holds one instance.
type Factory interface {
	// CreateExecutor returns a remote-execution capability for identity,
	// local for loopback addresses and SSH otherwise.
	CreateExecutor(identity config.HostIdentity) (executor.Executor, error)

	// CreatePackageManager probes exec to pick among apt, dnf, and
	// compose for identity.
	CreatePackageManager(ctx context.Context, identity config.HostIdentity, exec executor.Executor) (pkgmanager.PackageManager, error)
}

// DefaultFactory is the production Factory: it dials real SSH connections
// and probes real hosts for their package manager.
type DefaultFactory struct {
	// Dialer is passed through to every SSH executor it builds; nil uses
	// the real network.
	Dialer executor.Dialer
}

var _ Factory = (*DefaultFactory)(nil)

// NewDefaultFactory returns a Factory that dials the real network.
func NewDefaultFactory() *DefaultFactory {
	return &DefaultFactory{}
}

// CreateExecutor implements Factory.
func (f *DefaultFactory) CreateExecutor(identity config.HostIdentity) (executor.Executor, error) {
	if isLoopback(identity.Address) {
		return executor.NewLocalExecutor(), nil
	}

	keys := executor.KeySource{FilePath: identity.KeyPath}
	if identity.KeyPath == "" {
		keys.UseAgent = true
	}
	return executor.NewSSHExecutor(identity.Address, identity.User, keys, f.Dialer), nil
}

// CreatePackageManager implements Factory. It probes, in order, for apt,
// then dnf, then a compose directory, and picks the first that is
// available.
func (f *DefaultFactory) CreatePackageManager(ctx context.Context, identity config.HostIdentity, exec executor.Executor) (pkgmanager.PackageManager, error) {
	apt := pkgmanager.NewAPT(exec)
	if ok, err := apt.IsAvailable(ctx); err == nil && ok {
		return apt, nil
	}

	dnf := pkgmanager.NewDNF(exec)
	if ok, err := dnf.IsAvailable(ctx); err == nil && ok {
		return dnf, nil
	}

	for _, dir := range identity.ComposeDirs {
		compose := pkgmanager.NewCompose(exec, dir)
		if ok, err := compose.IsAvailable(ctx); err == nil && ok {
			return compose, nil
		}
	}

	return nil, pkgmanager.ErrComposeNotFound
}

func isLoopback(address string) bool {
	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}
	host = strings.TrimSpace(host)

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
