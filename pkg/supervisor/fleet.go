// SPDX-License-Identifier: BSD-3-Clause

package supervisor

import "time"

// Filter narrows a fleet update to a subset of registered hosts (spec
// §3.5, §4.2). A host is eligible iff it is not in ExcludeHosts AND
// (IncludeTags is empty OR the host's tags intersect it) AND
// (IncludeGroups is empty OR the host belongs to one of the named
// groups). Tag and group matching is "any of", not "all of" — see
// DESIGN.md for why the source material's "AND" language is not what
// the logic here implements.
type Filter struct {
	ExcludeHosts  []string
	IncludeTags   []string
	IncludeGroups []string
}

// FleetConfig is the input to FleetUpdate (spec §3.5).
type FleetConfig struct {
	BatchSize       int
	InterBatchDelay time.Duration
	Filter          Filter
	DryRun          bool
}

// ProgressSummary tallies a fleet update's outcome (spec §4.2): counts
// plus a per-host textual result ("ok" or the failure reason).
type ProgressSummary struct {
	Completed int
	Failed    int
	Results   map[string]string
}

func (s *Supervisor) eligibleHosts(f Filter) []string {
	exclude := toSet(f.ExcludeHosts)
	tags := toSet(f.IncludeTags)

	var eligible []string
	for name, e := range s.registry {
		if exclude[name] {
			continue
		}
		if len(tags) > 0 && !intersects(e.identity.Tags, tags) {
			continue
		}
		if len(f.IncludeGroups) > 0 && !inAnyGroup(s.groupNamesFor(name), f.IncludeGroups) {
			continue
		}
		eligible = append(eligible, name)
	}
	return eligible
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

func intersects(items []string, set map[string]bool) bool {
	for _, i := range items {
		if set[i] {
			return true
		}
	}
	return false
}

func inAnyGroup(hostGroups, wanted []string) bool {
	want := toSet(wanted)
	for _, g := range hostGroups {
		if want[g] {
			return true
		}
	}
	return false
}
