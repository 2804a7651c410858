// SPDX-License-Identifier: BSD-3-Clause

package pkgmanager

import (
	"context"
	"errors"
	"testing"

	"github.com/tendhost/tendhost/internal/fleetsim"
)

func TestAPTListUpgradableParsesEntries(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor().WithStatus("apt list --upgradable 2>/dev/null", 0, ""+
		"Listing...\n"+
		"vim/jammy-updates 2:8.2.3995-1ubuntu2.15 amd64 [upgradable from: 2:8.2.3995-1ubuntu2.14]\n"+
		"curl/jammy-security 7.81.0-1ubuntu1.15 amd64 [upgradable from: 7.81.0-1ubuntu1.14]\n",
		"")
	m := NewAPT(exec)

	pkgs, err := m.ListUpgradable(context.Background())
	if err != nil {
		t.Fatalf("ListUpgradable: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("len(pkgs) = %d, want 2", len(pkgs))
	}
	if pkgs[0].Name != "vim" || pkgs[0].NewVersion != "2:8.2.3995-1ubuntu2.15" || pkgs[0].CurrentVersion != "2:8.2.3995-1ubuntu2.14" {
		t.Fatalf("pkgs[0] = %+v", pkgs[0])
	}
	if pkgs[1].Name != "curl" || pkgs[1].RepositoryLabel != "jammy-security" {
		t.Fatalf("pkgs[1] = %+v", pkgs[1])
	}
}

func TestAPTListUpgradableEmpty(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor().WithStatus("apt list --upgradable 2>/dev/null", 0, "Listing...\n", "")
	m := NewAPT(exec)

	pkgs, err := m.ListUpgradable(context.Background())
	if err != nil {
		t.Fatalf("ListUpgradable: %v", err)
	}
	if len(pkgs) != 0 {
		t.Fatalf("len(pkgs) = %d, want 0", len(pkgs))
	}
}

func TestAPTLockConflictIsRetryable(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor().WithStatus(
		"DEBIAN_FRONTEND=noninteractive apt-get upgrade -y", 100, "",
		"E: Could not get lock /var/lib/dpkg/lock-frontend",
	)
	m := NewAPT(exec)

	_, err := m.UpgradeAll(context.Background())
	if !errors.Is(err, ErrLockConflict) {
		t.Fatalf("UpgradeAll error = %v, want ErrLockConflict", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("IsRetryable(%v) = false, want true", err)
	}
}

func TestAPTUpgradeAllSummary(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor().
		WithStatus("DEBIAN_FRONTEND=noninteractive apt-get upgrade -y", 0,
			"3 upgraded, 1 newly installed, 0 to remove and 0 not upgraded.\n", "").
		WithStatus("test -f /var/run/reboot-required", 1, "", "")

	m := NewAPT(exec)
	res, err := m.UpgradeAll(context.Background())
	if err != nil {
		t.Fatalf("UpgradeAll: %v", err)
	}
	if !res.Success || res.UpgradedCount != 3 || res.InstalledCount != 1 {
		t.Fatalf("res = %+v", res)
	}
	if res.RebootRequired {
		t.Fatalf("RebootRequired = true, want false")
	}
}

func TestAPTRebootRequired(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor().WithStatus("test -f /var/run/reboot-required", 0, "", "")
	m := NewAPT(exec)
	required, err := m.RebootRequired(context.Background())
	if err != nil {
		t.Fatalf("RebootRequired: %v", err)
	}
	if !required {
		t.Fatal("RebootRequired() = false, want true")
	}
}
