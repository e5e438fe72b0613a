package domain

import "sort"

// Snapshot is an immutable point-in-time view of one campaign's graph:
// missions, dependency edges, and the applicable rank ladder. Operations read
// a snapshot once; later graph edits do not retroactively revoke records.
type Snapshot struct {
	Campaign     Campaign
	Missions     map[string]Mission
	Dependencies []Dependency
	Ladder       Ladder

	requiredBy map[string][]string // target -> sources
	unlocks    map[string][]string // source -> targets
}

// NewSnapshot indexes the adjacency of the dependency edges. Missions are an
// arena addressed by opaque id; edges referencing unknown missions are kept
// (the resolver skips and logs them as integrity warnings).
func NewSnapshot(campaign Campaign, missions []Mission, deps []Dependency, ladder Ladder) Snapshot {
	byID := make(map[string]Mission, len(missions))
	for _, m := range missions {
		byID[m.ID] = m
	}
	requiredBy := make(map[string][]string)
	unlocks := make(map[string][]string)
	for _, d := range deps {
		requiredBy[d.TargetMissionID] = append(requiredBy[d.TargetMissionID], d.SourceMissionID)
		unlocks[d.SourceMissionID] = append(unlocks[d.SourceMissionID], d.TargetMissionID)
	}
	return Snapshot{
		Campaign:     campaign,
		Missions:     byID,
		Dependencies: deps,
		Ladder:       ladder,
		requiredBy:   requiredBy,
		unlocks:      unlocks,
	}
}

// RequiredSources returns the mission ids the target requires completed.
func (s Snapshot) RequiredSources(targetMissionID string) []string {
	return s.requiredBy[targetMissionID]
}

// DependentTargets returns the mission ids unlocked by completing source.
// Each distinct target appears once even when duplicate edges exist.
func (s Snapshot) DependentTargets(sourceMissionID string) []string {
	seen := make(map[string]bool)
	var targets []string
	for _, target := range s.unlocks[sourceMissionID] {
		if seen[target] {
			continue
		}
		seen[target] = true
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// EntryMissionIDs returns missions with no incoming dependency edges, sorted.
// These bootstrap to AVAILABLE on assignment.
func (s Snapshot) EntryMissionIDs() []string {
	var entries []string
	for missionID := range s.Missions {
		if len(s.requiredBy[missionID]) == 0 {
			entries = append(entries, missionID)
		}
	}
	sort.Strings(entries)
	return entries
}

// MissionIDs returns every mission id in the snapshot, sorted.
func (s Snapshot) MissionIDs() []string {
	ids := make([]string, 0, len(s.Missions))
	for missionID := range s.Missions {
		ids = append(ids, missionID)
	}
	sort.Strings(ids)
	return ids
}

// BootstrapStatus returns the initial record status for a mission: AVAILABLE
// for entry points, LOCKED for missions with dependencies.
func (s Snapshot) BootstrapStatus(missionID string) Status {
	if len(s.requiredBy[missionID]) == 0 {
		return StatusAvailable
	}
	return StatusLocked
}
