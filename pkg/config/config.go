// SPDX-License-Identifier: BSD-3-Clause

// Package config defines the shape of tendhost's external configuration
// per spec §3.1/§6: defaults, host identities, and named groups, loaded
// from YAML. The loader itself is deliberately thin — watching a path for
// changes, merging multiple sources, is left to the caller.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the per-host behavior governing reboot handling. It is the
// only piece of identity that is not itself identifying.
type Policy struct {
	// AutoReboot permits a reboot-if-required request to fire the
	// waiting-reboot -> rebooting transition; when false the request
	// reports "not rebooted" and the host stays in waiting-reboot.
	AutoReboot bool `yaml:"auto_reboot"`
	// MaxRetries is read from the configuration and carried on the
	// identity. Retry does not consult it: a failed host can be retried
	// any number of times.
	MaxRetries int `yaml:"max_retries"`
}

// HostIdentity is the immutable, unique-by-name description of one
// managed host (spec §3.1).
type HostIdentity struct {
	Name        string   `yaml:"name"`
	Address     string   `yaml:"address"`
	User        string   `yaml:"user,omitempty"`
	KeyPath     string   `yaml:"key_path,omitempty"`
	ComposeDirs []string `yaml:"compose_dirs,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Policy      Policy   `yaml:"policy,omitempty"`
}

// Defaults supplies fallback values applied to a HostIdentity wherever
// its own field is absent.
type Defaults struct {
	User    string `yaml:"user"`
	KeyPath string `yaml:"key_path,omitempty"`
}

// Group names a set of hosts by name, for fleet-update filter matching.
type Group struct {
	Name  string   `yaml:"name"`
	Hosts []string `yaml:"hosts"`
}

// Config is the full deserialized configuration document.
type Config struct {
	Defaults Defaults       `yaml:"defaults"`
	Hosts    []HostIdentity `yaml:"hosts"`
	Groups   []Group        `yaml:"groups,omitempty"`
}

// Load reads and parses the YAML document at path, then applies Defaults
// to every host identity missing a User or KeyPath.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Hosts {
		applyDefaults(&cfg.Hosts[i], cfg.Defaults)
	}

	return &cfg, nil
}

func applyDefaults(h *HostIdentity, d Defaults) {
	if h.User == "" {
		h.User = d.User
	}
	if h.KeyPath == "" {
		h.KeyPath = d.KeyPath
	}
}

// GroupsFor returns the names of every group containing host.
func (c *Config) GroupsFor(host string) []string {
	var names []string
	for _, g := range c.Groups {
		for _, h := range g.Hosts {
			if h == host {
				names = append(names, g.Name)
				break
			}
		}
	}
	return names
}
