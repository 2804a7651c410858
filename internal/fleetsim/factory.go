// SPDX-License-Identifier: BSD-3-Clause

package fleetsim

import (
	"context"

	"github.com/tendhost/tendhost/pkg/config"
	"github.com/tendhost/tendhost/pkg/executor"
	"github.com/tendhost/tendhost/pkg/hostdep"
	"github.com/tendhost/tendhost/pkg/pkgmanager"
)

// Factory is a fake hostdep.Factory returning a fresh ScriptedExecutor
// and ScriptedPackageManager for every host, recorded by name for the
// test to script or inspect afterward.
type Factory struct {
	Executors       map[string]*ScriptedExecutor
	PackageManagers map[string]*ScriptedPackageManager
}

var _ hostdep.Factory = (*Factory)(nil)

// NewFactory returns an empty Factory; every Create call builds a new
// executor or package manager and records it under the host's name,
// replacing any earlier one for that name.
func NewFactory() *Factory {
	return &Factory{
		Executors:       make(map[string]*ScriptedExecutor),
		PackageManagers: make(map[string]*ScriptedPackageManager),
	}
}

func (f *Factory) CreateExecutor(identity config.HostIdentity) (executor.Executor, error) {
	exec := NewScriptedExecutor()
	f.Executors[identity.Name] = exec
	return exec, nil
}

func (f *Factory) CreatePackageManager(ctx context.Context, identity config.HostIdentity, exec executor.Executor) (pkgmanager.PackageManager, error) {
	pm := NewScriptedPackageManager(pkgmanager.KindAPT)
	f.PackageManagers[identity.Name] = pm
	return pm, nil
}
