// SPDX-License-Identifier: BSD-3-Clause

package pkgmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tendhost/tendhost/pkg/executor"
)

// composePackageManager treats a Docker Compose project's services as
// "packages": an upgrade pulls fresh images and recreates containers.
// There is no reboot-required concept for compose, per spec §4.5.
type composePackageManager struct {
	exec executor.Executor
	dir  string
}

var _ PackageManager = (*composePackageManager)(nil)

// NewCompose builds a PackageManager that drives `docker compose` against
// the project rooted at dir.
func NewCompose(exec executor.Executor, dir string) PackageManager {
	return &composePackageManager{exec: exec, dir: dir}
}

type composeService struct {
	Service string `json:"Service"`
	Image   string `json:"Image"`
}

// ListUpgradable lists each service whose image has a newer version
// available upstream, determined by comparing the running image digest
// to the registry's current digest for the same tag.
func (m *composePackageManager) ListUpgradable(ctx context.Context) ([]Upgradable, error) {
	res, err := m.exec.Run(ctx, m.cmd("config --format json"))
	if err != nil {
		return nil, classifyExecErr(err)
	}
	if res.Status != 0 {
		return nil, classifyComposeStatus(res.Status, res.Stderr)
	}

	services, err := parseComposeServices(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseError, err)
	}

	var out []Upgradable
	for _, svc := range services {
		stale, err := m.imageIsStale(ctx, svc.Image)
		if err != nil {
			continue
		}
		if stale {
			out = append(out, Upgradable{Name: svc.Service, CurrentVersion: svc.Image, NewVersion: svc.Image})
		}
	}
	return out, nil
}

func parseComposeServices(output string) ([]composeService, error) {
	var raw struct {
		Services map[string]struct {
			Image string `json:"image"`
		} `json:"services"`
	}
	if err := json.Unmarshal([]byte(output), &raw); err != nil {
		return nil, err
	}
	out := make([]composeService, 0, len(raw.Services))
	for name, svc := range raw.Services {
		out = append(out, composeService{Service: name, Image: svc.Image})
	}
	return out, nil
}

func (m *composePackageManager) imageIsStale(ctx context.Context, image string) (bool, error) {
	res, err := m.exec.Run(ctx, fmt.Sprintf("docker image ls --no-trunc --format '{{.Digest}}' %s", image))
	if err != nil {
		return false, err
	}
	localDigest := strings.TrimSpace(res.Stdout)

	res, err = m.exec.Run(ctx, fmt.Sprintf("docker manifest inspect --verbose %s 2>/dev/null | grep -m1 digest", image))
	if err != nil {
		return false, err
	}
	return localDigest != "" && !strings.Contains(res.Stdout, localDigest), nil
}

// UpgradeAll pulls fresh images and recreates every service.
func (m *composePackageManager) UpgradeAll(ctx context.Context) (UpdateResult, error) {
	return m.upgrade(ctx, false)
}

// UpgradeDryRun pulls fresh images (so ListUpgradable's digest check
// would see them) but never recreates containers.
func (m *composePackageManager) UpgradeDryRun(ctx context.Context) (UpdateResult, error) {
	return m.upgrade(ctx, true)
}

func (m *composePackageManager) upgrade(ctx context.Context, dryRun bool) (UpdateResult, error) {
	upgradable, err := m.ListUpgradable(ctx)
	if err != nil {
		return UpdateResult{}, err
	}

	pullRes, err := m.exec.Run(ctx, m.cmd("pull"))
	if err != nil {
		return UpdateResult{}, classifyExecErr(err)
	}
	if pullRes.Status != 0 {
		return UpdateResult{}, classifyComposeStatus(pullRes.Status, pullRes.Stderr)
	}

	if dryRun {
		return UpdateResult{Success: true, UpgradedCount: len(upgradable)}, nil
	}

	upRes, err := m.exec.Run(ctx, m.cmd("up -d --remove-orphans"))
	if err != nil {
		return UpdateResult{}, classifyExecErr(err)
	}
	if upRes.Status != 0 {
		return UpdateResult{}, classifyComposeStatus(upRes.Status, upRes.Stderr)
	}

	names := make([]string, len(upgradable))
	for i, u := range upgradable {
		names[i] = u.Name
	}

	return UpdateResult{Success: true, UpgradedCount: len(upgradable), UpgradedNames: names}, nil
}

// RebootRequired is always false for compose: recreating a container
// never needs a host reboot.
func (m *composePackageManager) RebootRequired(ctx context.Context) (bool, error) {
	return false, nil
}

func (m *composePackageManager) ManagerType() ManagerKind {
	return KindCompose
}

func (m *composePackageManager) IsAvailable(ctx context.Context) (bool, error) {
	res, err := m.exec.Run(ctx, fmt.Sprintf("test -f %s/docker-compose.yml -o -f %s/docker-compose.yaml -o -f %s/compose.yaml", m.dir, m.dir, m.dir))
	if err != nil {
		return false, classifyExecErr(err)
	}
	return res.Status == 0, nil
}

func (m *composePackageManager) cmd(args string) string {
	return fmt.Sprintf("docker compose --project-directory %s %s", m.dir, args)
}

func classifyComposeStatus(status int, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "no such file or directory") || strings.Contains(lower, "no configuration file"):
		return ErrComposeNotFound
	case strings.Contains(lower, "permission denied"):
		return ErrPermissionDenied
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "cannot connect to the docker daemon"):
		return ErrRepositoryUnavailable
	default:
		return &CommandFailed{Status: status, Message: stderr}
	}
}
