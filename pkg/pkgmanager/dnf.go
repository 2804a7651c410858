// SPDX-License-Identifier: BSD-3-Clause

package pkgmanager

import (
	"context"
	"fmt"
	"strings"

	"github.com/tendhost/tendhost/pkg/executor"
)

// dnfPackageManager wraps dnf for Fedora/RHEL hosts. It runs and probes
// only the dnf binary; yum is neither invoked nor detected.
type dnfPackageManager struct {
	exec executor.Executor
}

var _ PackageManager = (*dnfPackageManager)(nil)

// NewDNF builds a PackageManager that drives dnf over exec.
func NewDNF(exec executor.Executor) PackageManager {
	return &dnfPackageManager{exec: exec}
}

// ListUpgradable runs `dnf check-update`, whose exit status (not stdout
// alone) signals the outcome: 100 means updates exist, 0 means none, any
// other status is a real failure.
func (m *dnfPackageManager) ListUpgradable(ctx context.Context) ([]Upgradable, error) {
	res, err := m.exec.Run(ctx, "dnf check-update")
	if err != nil {
		return nil, classifyExecErr(err)
	}

	switch res.Status {
	case 0:
		return nil, nil
	case 100:
		return parseDNFCheckUpdate(res.Stdout), nil
	default:
		return nil, classifyDNFStatus(res.Status, res.Stderr)
	}
}

func parseDNFCheckUpdate(output string) []Upgradable {
	var out []Upgradable
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		nameArch, version, repo := fields[0], fields[1], fields[2]
		name, arch, _ := strings.Cut(nameArch, ".")
		out = append(out, Upgradable{
			Name:            name,
			NewVersion:      version,
			Architecture:    arch,
			RepositoryLabel: repo,
		})
	}
	return out
}

// UpgradeAll runs `dnf upgrade -y`.
func (m *dnfPackageManager) UpgradeAll(ctx context.Context) (UpdateResult, error) {
	return m.upgrade(ctx, "dnf upgrade -y")
}

// UpgradeDryRun runs the same command with --assumeno, which reports what
// would happen without applying it.
func (m *dnfPackageManager) UpgradeDryRun(ctx context.Context) (UpdateResult, error) {
	return m.upgrade(ctx, "dnf upgrade -y --assumeno")
}

func (m *dnfPackageManager) upgrade(ctx context.Context, command string) (UpdateResult, error) {
	res, err := m.exec.Run(ctx, command)
	if err != nil {
		return UpdateResult{}, classifyExecErr(err)
	}
	// --assumeno makes dnf exit 1 even on a clean simulated run; treat
	// that one status as success for the dry-run path only.
	if res.Status != 0 && !(strings.Contains(command, "--assumeno") && res.Status == 1) {
		return UpdateResult{}, classifyDNFStatus(res.Status, res.Stderr)
	}

	result := UpdateResult{Success: true}
	result.UpgradedCount, result.InstalledCount = parseDNFSummary(res.Stdout)

	rebootRequired, err := m.RebootRequired(ctx)
	if err == nil {
		result.RebootRequired = rebootRequired
	}

	return result, nil
}

// parseDNFSummary extracts counts from dnf's transaction summary, e.g.:
//
//	Upgraded: 4 Packages
//	Installed: 1 Package
func parseDNFSummary(output string) (upgraded, installed int) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Upgraded:") {
			fmt.Sscanf(line, "Upgraded: %d", &upgraded)
		}
		if strings.HasPrefix(line, "Installed:") {
			fmt.Sscanf(line, "Installed: %d", &installed)
		}
	}
	return
}

// RebootRequired shells out to needs-restarting -r, the RPM-family
// convention: exit 1 means a reboot is needed, exit 0 means it is not.
func (m *dnfPackageManager) RebootRequired(ctx context.Context) (bool, error) {
	res, err := m.exec.Run(ctx, "needs-restarting -r")
	if err != nil {
		return false, classifyExecErr(err)
	}
	return res.Status == 1, nil
}

func (m *dnfPackageManager) ManagerType() ManagerKind {
	return KindDNF
}

func (m *dnfPackageManager) IsAvailable(ctx context.Context) (bool, error) {
	return executor.CheckCommandExists(ctx, m.exec, "dnf")
}

func classifyDNFStatus(status int, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "lock") && strings.Contains(lower, "held"):
		return ErrLockConflict
	case strings.Contains(lower, "permission denied"):
		return ErrPermissionDenied
	case strings.Contains(lower, "cannot find a valid baseurl") || strings.Contains(lower, "failed to synchronize"):
		return ErrRepositoryUnavailable
	default:
		return &CommandFailed{Status: status, Message: stderr}
	}
}
