// SPDX-License-Identifier: BSD-3-Clause

package pkgmanager

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tendhost/tendhost/pkg/executor"
	"github.com/tendhost/tendhost/pkg/log"
)

// aptPackageManager wraps apt/apt-get for Debian/Ubuntu hosts.
type aptPackageManager struct {
	exec executor.Executor
}

var _ PackageManager = (*aptPackageManager)(nil)

// NewAPT builds a PackageManager that drives apt over exec.
func NewAPT(exec executor.Executor) PackageManager {
	return &aptPackageManager{exec: exec}
}

// ListUpgradable runs `apt list --upgradable` and parses lines shaped:
//
//	name/suite version arch [upgradable from: oldversion]
func (m *aptPackageManager) ListUpgradable(ctx context.Context) ([]Upgradable, error) {
	res, err := m.exec.Run(ctx, "apt list --upgradable 2>/dev/null")
	if err != nil {
		return nil, classifyExecErr(err)
	}
	if res.Status != 0 {
		return nil, classifyAPTStatus(res.Status, res.Stderr)
	}

	var out []Upgradable
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Listing...") {
			continue
		}
		pkg, ok := parseAPTLine(line)
		if !ok {
			continue
		}
		out = append(out, pkg)
	}
	return out, nil
}

func parseAPTLine(line string) (Upgradable, bool) {
	nameRepo, rest, ok := strings.Cut(line, " ")
	if !ok {
		return Upgradable{}, false
	}
	name, repo, _ := strings.Cut(nameRepo, "/")

	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return Upgradable{}, false
	}
	newVersion := fields[0]
	arch := fields[1]

	currentVersion := ""
	if idx := strings.Index(rest, "upgradable from: "); idx != -1 {
		from := rest[idx+len("upgradable from: "):]
		from = strings.TrimSuffix(strings.TrimSpace(from), "]")
		currentVersion = from
	}

	return Upgradable{
		Name:            name,
		CurrentVersion:  currentVersion,
		NewVersion:      newVersion,
		Architecture:    arch,
		RepositoryLabel: repo,
	}, true
}

// UpgradeAll runs `apt-get upgrade -y` and summarizes its output.
func (m *aptPackageManager) UpgradeAll(ctx context.Context) (UpdateResult, error) {
	return m.upgrade(ctx, "DEBIAN_FRONTEND=noninteractive apt-get upgrade -y")
}

// UpgradeDryRun runs the same command with --simulate, which never
// mutates the system.
func (m *aptPackageManager) UpgradeDryRun(ctx context.Context) (UpdateResult, error) {
	return m.upgrade(ctx, "DEBIAN_FRONTEND=noninteractive apt-get upgrade -y --simulate")
}

func (m *aptPackageManager) upgrade(ctx context.Context, command string) (UpdateResult, error) {
	res, err := m.exec.Run(ctx, command)
	if err != nil {
		return UpdateResult{}, classifyExecErr(err)
	}
	if res.Status != 0 {
		return UpdateResult{}, classifyAPTStatus(res.Status, res.Stderr)
	}

	result := UpdateResult{Success: true}
	result.UpgradedCount, result.InstalledCount, result.RemovedCount = parseAPTSummary(res.Stdout)

	rebootRequired, err := m.RebootRequired(ctx)
	if err == nil {
		result.RebootRequired = rebootRequired
	}

	return result, nil
}

// parseAPTSummary extracts counts from apt's closing line, e.g.:
//
//	3 upgraded, 1 newly installed, 0 to remove and 0 not upgraded.
func parseAPTSummary(output string) (upgraded, installed, removed int) {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "upgraded,") {
			fmt.Sscanf(strings.TrimSpace(line), "%d upgraded, %d newly installed, %d to remove", &upgraded, &installed, &removed)
			return
		}
	}
	return
}

// RebootRequired checks for the presence of /var/run/reboot-required, the
// Debian-family convention.
func (m *aptPackageManager) RebootRequired(ctx context.Context) (bool, error) {
	res, err := m.exec.Run(ctx, "test -f /var/run/reboot-required")
	if err != nil {
		return false, classifyExecErr(err)
	}
	return res.Status == 0, nil
}

func (m *aptPackageManager) ManagerType() ManagerKind {
	return KindAPT
}

func (m *aptPackageManager) IsAvailable(ctx context.Context) (bool, error) {
	return executor.CheckCommandExists(ctx, m.exec, "apt-get")
}

func classifyAPTStatus(status int, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "could not get lock") || strings.Contains(lower, "unable to lock"):
		return ErrLockConflict
	case strings.Contains(lower, "permission denied") || strings.Contains(lower, "are you root"):
		return ErrPermissionDenied
	case strings.Contains(lower, "unable to fetch") || strings.Contains(lower, "failed to fetch"):
		return ErrRepositoryUnavailable
	default:
		return &CommandFailed{Status: status, Message: stderr}
	}
}

func classifyExecErr(err error) error {
	log.GetGlobalLogger().Debug("package manager command failed before completion", "error", err)
	if os.IsTimeout(err) {
		return ErrRepositoryUnavailable
	}
	return err
}
