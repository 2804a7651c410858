// SPDX-License-Identifier: BSD-3-Clause

package fleetsim

import (
	"context"

	"github.com/tendhost/tendhost/pkg/pkgmanager"
)

// ScriptedPackageManager is a fake pkgmanager.PackageManager whose every
// method returns a canned result, set directly on the struct before use.
type ScriptedPackageManager struct {
	Kind pkgmanager.ManagerKind

	Upgradable    []pkgmanager.Upgradable
	UpgradableErr error
	UpgradeResult pkgmanager.UpdateResult
	UpgradeErr    error
	DryRunResult  pkgmanager.UpdateResult
	DryRunErr     error
	RebootNeeded  bool
	RebootErr     error
	Available     bool
	AvailableErr  error

	UpgradeAllCalls int
	DryRunCalls     int
}

var _ pkgmanager.PackageManager = (*ScriptedPackageManager)(nil)

// NewScriptedPackageManager returns a fake reporting success with no
// upgrades and no reboot required, until its fields are overridden.
func NewScriptedPackageManager(kind pkgmanager.ManagerKind) *ScriptedPackageManager {
	return &ScriptedPackageManager{
		Kind:          kind,
		UpgradeResult: pkgmanager.UpdateResult{Success: true},
		DryRunResult:  pkgmanager.UpdateResult{Success: true},
		Available:     true,
	}
}

func (p *ScriptedPackageManager) ListUpgradable(ctx context.Context) ([]pkgmanager.Upgradable, error) {
	return p.Upgradable, p.UpgradableErr
}

func (p *ScriptedPackageManager) UpgradeAll(ctx context.Context) (pkgmanager.UpdateResult, error) {
	p.UpgradeAllCalls++
	return p.UpgradeResult, p.UpgradeErr
}

func (p *ScriptedPackageManager) UpgradeDryRun(ctx context.Context) (pkgmanager.UpdateResult, error) {
	p.DryRunCalls++
	return p.DryRunResult, p.DryRunErr
}

func (p *ScriptedPackageManager) RebootRequired(ctx context.Context) (bool, error) {
	return p.RebootNeeded, p.RebootErr
}

func (p *ScriptedPackageManager) ManagerType() pkgmanager.ManagerKind {
	return p.Kind
}

func (p *ScriptedPackageManager) IsAvailable(ctx context.Context) (bool, error) {
	return p.Available, p.AvailableErr
}
