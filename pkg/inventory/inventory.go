// SPDX-License-Identifier: BSD-3-Clause

// Package inventory implements the inventory contract of spec §4.6: a
// structured host snapshot collected by running a fixed sequence of
// parameterless SQL queries through osqueryi --json, cached by SQL string
// with a configurable TTL, with partial-collection semantics so one
// failing subsection never discards the rest of the snapshot.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendhost/tendhost/pkg/executor"
	"github.com/tendhost/tendhost/pkg/log"
)

// OSIdentity describes the host's operating system.
type OSIdentity struct {
	Name    string
	Version string
	Arch    string
}

// Hardware describes the host's CPU, memory, disks, and network
// interfaces. Any subsection left zero means its query failed; see
// Snapshot.Warnings.
type Hardware struct {
	CPUModel      string
	CPUCores      int
	MemoryBytes   int64
	Disks         []Disk
	NetInterfaces []NetInterface
}

// Disk describes one block device.
type Disk struct {
	Device     string
	SizeBytes  int64
	Filesystem string
}

// NetInterface describes one network interface.
type NetInterface struct {
	Name    string
	Address string
	MAC     string
}

// Package describes one installed package, as distinct from pkgmanager's
// Upgradable: this is the full installed inventory, not just what can be
// upgraded.
type Package struct {
	Name    string
	Version string
	Source  string
}

// Container describes one Docker container observed on the host.
type Container struct {
	ID     string
	Image  string
	Status string
}

// Snapshot is the full inventory result for one host. QueryID
// distinguishes repeated snapshots of the same host in logs and traces.
type Snapshot struct {
	QueryID    string
	CollectedAt time.Time
	OS         OSIdentity
	Hardware   Hardware
	Packages   []Package
	Containers []Container
	Warnings   []string
}

// query names one osquery table pull and the function that decodes its
// JSON rows into the snapshot.
type query struct {
	name string
	sql  string
	fill func(rows []map[string]any, snap *Snapshot)
}

var queries = []query{
	{
		name: "os_version",
		sql:  "SELECT name, version FROM os_version;",
		fill: func(rows []map[string]any, snap *Snapshot) {
			if len(rows) == 0 {
				return
			}
			snap.OS.Name, _ = rows[0]["name"].(string)
			snap.OS.Version, _ = rows[0]["version"].(string)
		},
	},
	{
		name: "cpu_info",
		sql:  "SELECT model, physical_cores FROM cpu_info;",
		fill: func(rows []map[string]any, snap *Snapshot) {
			if len(rows) == 0 {
				return
			}
			snap.Hardware.CPUModel, _ = rows[0]["model"].(string)
			if s, ok := rows[0]["physical_cores"].(string); ok {
				fmt.Sscanf(s, "%d", &snap.Hardware.CPUCores)
			}
		},
	},
	{
		name: "memory_info",
		sql:  "SELECT memory_total FROM memory_info;",
		fill: func(rows []map[string]any, snap *Snapshot) {
			if len(rows) == 0 {
				return
			}
			if s, ok := rows[0]["memory_total"].(string); ok {
				fmt.Sscanf(s, "%d", &snap.Hardware.MemoryBytes)
			}
		},
	},
	{
		name: "block_devices",
		sql:  "SELECT name, size, type FROM block_devices WHERE type = 'disk';",
		fill: func(rows []map[string]any, snap *Snapshot) {
			for _, r := range rows {
				d := Disk{}
				d.Device, _ = r["name"].(string)
				if s, ok := r["size"].(string); ok {
					fmt.Sscanf(s, "%d", &d.SizeBytes)
				}
				snap.Hardware.Disks = append(snap.Hardware.Disks, d)
			}
		},
	},
	{
		name: "interface_addresses",
		sql:  "SELECT interface, address, mask FROM interface_addresses;",
		fill: func(rows []map[string]any, snap *Snapshot) {
			for _, r := range rows {
				n := NetInterface{}
				n.Name, _ = r["interface"].(string)
				n.Address, _ = r["address"].(string)
				snap.Hardware.NetInterfaces = append(snap.Hardware.NetInterfaces, n)
			}
		},
	},
	{
		name: "deb_packages_and_rpm_packages",
		sql:  "SELECT name, version, source FROM deb_packages UNION SELECT name, version, source FROM rpm_packages;",
		fill: func(rows []map[string]any, snap *Snapshot) {
			for _, r := range rows {
				p := Package{}
				p.Name, _ = r["name"].(string)
				p.Version, _ = r["version"].(string)
				p.Source, _ = r["source"].(string)
				snap.Packages = append(snap.Packages, p)
			}
		},
	},
	{
		name: "docker_containers",
		sql:  "SELECT id, image, status FROM docker_containers;",
		fill: func(rows []map[string]any, snap *Snapshot) {
			for _, r := range rows {
				c := Container{}
				c.ID, _ = r["id"].(string)
				c.Image, _ = r["image"].(string)
				c.Status, _ = r["status"].(string)
				snap.Containers = append(snap.Containers, c)
			}
		},
	},
}

type cacheEntry struct {
	rows    []map[string]any
	err     error
	expires time.Time
}

// Collector runs the fixed query sequence against one host's executor.
type Collector struct {
	exec executor.Executor
	ttl  time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry

	// osqueryFound records a successful osqueryi probe; later queries skip it.
	osqueryFound bool
}

// NewCollector builds a Collector using exec to run osqueryi, caching
// each query's result for ttl.
func NewCollector(exec executor.Executor, ttl time.Duration) *Collector {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Collector{exec: exec, ttl: ttl, cache: make(map[string]cacheEntry)}
}

// Collect runs every query and assembles a Snapshot. A query that fails
// leaves its subsection at its zero value and appends a warning; Collect
// itself only returns an error if every query failed (osquery is
// presumably entirely unavailable).
func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{QueryID: uuid.NewString(), CollectedAt: time.Now()}
	logger := log.GetGlobalLogger().With("component", "inventory")

	failures := 0
	for _, q := range queries {
		rows, err := c.run(ctx, q.sql)
		if err != nil {
			failures++
			warning := fmt.Sprintf("%s: %v", q.name, err)
			snap.Warnings = append(snap.Warnings, warning)
			logger.Warn("inventory subsection failed, continuing with partial snapshot", "query", q.name, "error", err)
			continue
		}
		q.fill(rows, &snap)
	}

	if failures == len(queries) {
		return snap, fmt.Errorf("%w: every query failed", ErrQueryFailed)
	}
	return snap, nil
}

func (c *Collector) run(ctx context.Context, sql string) ([]map[string]any, error) {
	c.mu.Lock()
	if entry, ok := c.cache[sql]; ok && time.Now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.rows, entry.err
	}
	c.mu.Unlock()

	rows, err := c.execute(ctx, sql)

	c.mu.Lock()
	c.cache[sql] = cacheEntry{rows: rows, err: err, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return rows, err
}

func (c *Collector) execute(ctx context.Context, sql string) ([]map[string]any, error) {
	c.mu.Lock()
	found := c.osqueryFound
	c.mu.Unlock()
	if !found {
		available, err := executor.CheckCommandExists(ctx, c.exec, "osqueryi")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOsqueryNotFound, err)
		}
		if !available {
			return nil, ErrOsqueryNotFound
		}
		c.mu.Lock()
		c.osqueryFound = true
		c.mu.Unlock()
	}

	command := fmt.Sprintf("osqueryi --json %s", shellQuote(sql))
	res, err := c.exec.Run(ctx, command)
	if err != nil {
		if _, ok := err.(*executor.Timeout); ok {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	if res.Status != 0 {
		if strings.Contains(res.Stderr, "no such table") {
			return nil, ErrTableNotAvailable
		}
		if strings.Contains(res.Stderr, "syntax error") {
			return nil, ErrSQLSyntax
		}
		return nil, fmt.Errorf("%w: %s", ErrQueryFailed, res.Stderr)
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(res.Stdout), &rows); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseError, err)
	}
	return rows, nil
}

// shellQuote wraps sql in single quotes, doubling any embedded single
// quote. No user input reaches a query in this core; this guards against
// future callers forgetting that invariant.
func shellQuote(sql string) string {
	return "'" + strings.ReplaceAll(sql, "'", "''") + "'"
}
