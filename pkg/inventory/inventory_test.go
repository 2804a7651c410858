// SPDX-License-Identifier: BSD-3-Clause

package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tendhost/tendhost/internal/fleetsim"
)

func scriptOsquery(exec *fleetsim.ScriptedExecutor) *fleetsim.ScriptedExecutor {
	return exec.WithStatus("which osqueryi", 0, "/usr/bin/osqueryi\n", "")
}

func TestCollectAssemblesFullSnapshot(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	scriptOsquery(exec)
	exec.WithStatus(`osqueryi --json 'SELECT name, version FROM os_version;'`, 0,
		`[{"name":"Ubuntu","version":"22.04"}]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT model, physical_cores FROM cpu_info;'`, 0,
		`[{"model":"Xeon","physical_cores":"8"}]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT memory_total FROM memory_info;'`, 0,
		`[{"memory_total":"16777216000"}]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT name, size, type FROM block_devices WHERE type = ''disk'';'`, 0,
		`[{"name":"sda","size":"1000000000"}]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT interface, address, mask FROM interface_addresses;'`, 0,
		`[{"interface":"eth0","address":"10.0.0.5"}]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT name, version, source FROM deb_packages UNION SELECT name, version, source FROM rpm_packages;'`, 0,
		`[{"name":"bash","version":"5.1","source":"dpkg"}]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT id, image, status FROM docker_containers;'`, 0,
		`[{"id":"abc123","image":"nginx","status":"running"}]`, "")

	c := NewCollector(exec, time.Minute)
	snap, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if snap.OS.Name != "Ubuntu" || snap.OS.Version != "22.04" {
		t.Fatalf("OS = %+v", snap.OS)
	}
	if snap.Hardware.CPUModel != "Xeon" || snap.Hardware.CPUCores != 8 {
		t.Fatalf("Hardware = %+v", snap.Hardware)
	}
	if len(snap.Packages) != 1 || snap.Packages[0].Name != "bash" {
		t.Fatalf("Packages = %+v", snap.Packages)
	}
	if len(snap.Containers) != 1 || snap.Containers[0].Image != "nginx" {
		t.Fatalf("Containers = %+v", snap.Containers)
	}
	if len(snap.Warnings) != 0 {
		t.Fatalf("Warnings = %v, want none", snap.Warnings)
	}
	if snap.QueryID == "" {
		t.Fatal("QueryID is empty")
	}
}

func TestCollectPartialFailureStillReturnsSnapshot(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	scriptOsquery(exec)
	exec.WithStatus(`osqueryi --json 'SELECT name, version FROM os_version;'`, 0,
		`[{"name":"Ubuntu","version":"22.04"}]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT model, physical_cores FROM cpu_info;'`, 1, "", "no such table: cpu_info")
	exec.WithStatus(`osqueryi --json 'SELECT memory_total FROM memory_info;'`, 0, `[]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT name, size, type FROM block_devices WHERE type = ''disk'';'`, 0, `[]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT interface, address, mask FROM interface_addresses;'`, 0, `[]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT name, version, source FROM deb_packages UNION SELECT name, version, source FROM rpm_packages;'`, 0, `[]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT id, image, status FROM docker_containers;'`, 0, `[]`, "")

	c := NewCollector(exec, time.Minute)
	snap, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if snap.OS.Name != "Ubuntu" {
		t.Fatalf("OS.Name = %q, want Ubuntu despite unrelated failure", snap.OS.Name)
	}
	if snap.Hardware.CPUModel != "" {
		t.Fatalf("CPUModel = %q, want zero value", snap.Hardware.CPUModel)
	}
	if len(snap.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want exactly 1", snap.Warnings)
	}
}

func TestCollectEveryQueryFailingReturnsError(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	exec.WithStatus("which osqueryi", 1, "", "")

	c := NewCollector(exec, time.Minute)
	_, err := c.Collect(context.Background())
	if !errors.Is(err, ErrQueryFailed) {
		t.Fatalf("Collect error = %v, want ErrQueryFailed", err)
	}
}

func TestCollectorCachesBySQLString(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	scriptOsquery(exec)
	exec.WithStatus(`osqueryi --json 'SELECT name, version FROM os_version;'`, 0,
		`[{"name":"Ubuntu","version":"22.04"}]`, "")

	c := NewCollector(exec, time.Minute)
	rows1, err := c.run(context.Background(), "SELECT name, version FROM os_version;")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	rows2, err := c.run(context.Background(), "SELECT name, version FROM os_version;")
	if err != nil {
		t.Fatalf("second run (cached): %v", err)
	}
	if len(rows1) != len(rows2) {
		t.Fatalf("cached result mismatch: %v vs %v", rows1, rows2)
	}

	calls := exec.Calls()
	count := 0
	for _, cmd := range calls {
		if cmd == `osqueryi --json 'SELECT name, version FROM os_version;'` {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("osqueryi invoked %d times, want 1 (second call should hit cache)", count)
	}
}

func TestCollectorCacheExpiresAfterTTL(t *testing.T) {
	exec := fleetsim.NewScriptedExecutor()
	scriptOsquery(exec)
	exec.WithStatus(`osqueryi --json 'SELECT name, version FROM os_version;'`, 0,
		`[{"name":"Ubuntu","version":"22.04"}]`, "")
	exec.WithStatus(`osqueryi --json 'SELECT name, version FROM os_version;'`, 0,
		`[{"name":"Ubuntu","version":"24.04"}]`, "")

	c := NewCollector(exec, time.Millisecond)
	_, err := c.run(context.Background(), "SELECT name, version FROM os_version;")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	_, err = c.run(context.Background(), "SELECT name, version FROM os_version;")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	calls := exec.Calls()
	count := 0
	for _, cmd := range calls {
		if cmd == `osqueryi --json 'SELECT name, version FROM os_version;'` {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("osqueryi invoked %d times, want 2 (TTL should have expired)", count)
	}
}
