// SPDX-License-Identifier: BSD-3-Clause

// Package pkgmanager implements the package-manager contract of spec §4.5:
// a thin abstraction over apt, dnf/yum, and docker compose that reports
// upgradable packages, applies upgrades, and detects whether a reboot is
// required, by parsing each native tool's own output.
package pkgmanager

import "context"

// ManagerKind identifies which native tool a PackageManager wraps.
type ManagerKind string

const (
	KindAPT     ManagerKind = "apt"
	KindDNF     ManagerKind = "dnf"
	KindCompose ManagerKind = "docker-compose"
)

// Upgradable describes one package with a newer version available.
type Upgradable struct {
	Name            string
	CurrentVersion  string
	NewVersion      string
	Architecture    string
	RepositoryLabel string
}

// UpdateResult is the structured outcome of an upgrade attempt.
type UpdateResult struct {
	Success         bool
	UpgradedCount   int
	InstalledCount  int
	RemovedCount    int
	RebootRequired  bool
	Error           string
	UpgradedNames   []string
}

// PackageManager is the capability the host machine invokes to inspect
// and apply package updates on one host.
type PackageManager interface {
	// ListUpgradable returns every package with an available upgrade.
	ListUpgradable(ctx context.Context) ([]Upgradable, error)

	// UpgradeAll applies every available upgrade.
	UpgradeAll(ctx context.Context) (UpdateResult, error)

	// UpgradeDryRun reports what UpgradeAll would do without applying it.
	UpgradeDryRun(ctx context.Context) (UpdateResult, error)

	// RebootRequired reports whether a pending upgrade requires a reboot
	// to take effect.
	RebootRequired(ctx context.Context) (bool, error)

	// ManagerType identifies the underlying native tool.
	ManagerType() ManagerKind

	// IsAvailable reports whether the native tool is present and usable
	// on the target host.
	IsAvailable(ctx context.Context) (bool, error)
}
