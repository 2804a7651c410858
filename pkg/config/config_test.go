// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
defaults:
  user: ops
  key_path: /etc/tendhost/default.key
hosts:
  - name: web-1
    address: 10.0.0.5
    tags: [web, prod]
  - name: db-1
    address: 10.0.0.6
    user: dba
    key_path: /etc/tendhost/db.key
    policy:
      auto_reboot: true
      max_retries: 3
groups:
  - name: web
    hosts: [web-1]
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tendhost.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Hosts) != 2 {
		t.Fatalf("len(Hosts) = %d, want 2", len(cfg.Hosts))
	}
	if cfg.Hosts[0].User != "ops" || cfg.Hosts[0].KeyPath != "/etc/tendhost/default.key" {
		t.Fatalf("web-1 = %+v, want defaults applied", cfg.Hosts[0])
	}
}

func TestLoadPreservesExplicitHostValues(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hosts[1].User != "dba" || cfg.Hosts[1].KeyPath != "/etc/tendhost/db.key" {
		t.Fatalf("db-1 = %+v, want explicit values preserved", cfg.Hosts[1])
	}
	if !cfg.Hosts[1].Policy.AutoReboot || cfg.Hosts[1].Policy.MaxRetries != 3 {
		t.Fatalf("db-1.Policy = %+v", cfg.Hosts[1].Policy)
	}
}

func TestGroupsFor(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	groups := cfg.GroupsFor("web-1")
	if len(groups) != 1 || groups[0] != "web" {
		t.Fatalf("GroupsFor(web-1) = %v, want [web]", groups)
	}
	if groups := cfg.GroupsFor("db-1"); len(groups) != 0 {
		t.Fatalf("GroupsFor(db-1) = %v, want none", groups)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load(missing file) = nil error, want error")
	}
}
