// Package graph runs structural health checks on a campaign's mission
// dependency graph: cycle detection, entry points, orphans, and dead ends.
// Results come back as a structured issue list so authoring tools decide
// whether to block publishing.
package graph

import (
	"fmt"
	"sort"

	"github.com/louisbranch/questline/internal/services/engine/domain"
)

// Severity classifies a graph issue.
type Severity string

const (
	// SeverityCritical issues break progression entirely.
	SeverityCritical Severity = "CRITICAL"
	// SeverityHigh issues make the funnel unusable or confusing.
	SeverityHigh Severity = "HIGH"
	// SeverityMedium issues leave unreachable content in place.
	SeverityMedium Severity = "MEDIUM"
	// SeverityLow issues are polish problems.
	SeverityLow Severity = "LOW"
)

// severityWeight is the health-score penalty per issue.
func severityWeight(s Severity) int {
	switch s {
	case SeverityCritical:
		return 30
	case SeverityHigh:
		return 15
	case SeverityMedium:
		return 5
	case SeverityLow:
		return 2
	}
	return 0
}

// severityOrder ranks severities for report ordering, most severe first.
func severityOrder(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

// maxEntryPoints is the highest entry-point count before the funnel is
// considered scattered.
const maxEntryPoints = 5

// maxDeadEnds is the highest dead-end count before we flag excess exits.
const maxDeadEnds = 3

// Issue is one detected problem with remediation guidance.
type Issue struct {
	Severity    Severity
	Code        string
	MissionIDs  []string
	Message     string
	Remediation string
}

// Report is the ordered validation outcome for one campaign graph.
type Report struct {
	Issues []Issue
	// IsValid is true when no critical or high severity issues exist.
	IsValid bool
	// HealthScore is max(0, 100 - sum of severity weights).
	HealthScore int
}

// Validate runs every structural check against the snapshot's mission set and
// dependency edges and returns the ordered issue list.
func Validate(snapshot domain.Snapshot) Report {
	var issues []Issue

	missionIDs := snapshot.MissionIDs()
	if len(missionIDs) == 0 {
		issues = append(issues, Issue{
			Severity:    SeverityHigh,
			Code:        "EMPTY_CAMPAIGN",
			Message:     "campaign has no missions",
			Remediation: "add at least one mission before publishing",
		})
		return buildReport(issues)
	}

	if cycle := DetectCycles(snapshot); len(cycle) > 0 {
		issues = append(issues, Issue{
			Severity:    SeverityCritical,
			Code:        "DEPENDENCY_CYCLE",
			MissionIDs:  cycle,
			Message:     fmt.Sprintf("dependency cycle: %v", cycle),
			Remediation: "remove one edge from the cycle so the graph is acyclic",
		})
	}

	entries := FindEntryPoints(snapshot)
	if len(entries) == 0 {
		issues = append(issues, Issue{
			Severity:    SeverityCritical,
			Code:        "NO_ENTRY_POINT",
			Message:     "no mission is reachable at bootstrap",
			Remediation: "ensure at least one mission has no incoming dependencies",
		})
	}
	if len(entries) > maxEntryPoints {
		issues = append(issues, Issue{
			Severity:    SeverityHigh,
			Code:        "TOO_MANY_ENTRY_POINTS",
			MissionIDs:  entries,
			Message:     fmt.Sprintf("%d entry points scatter the funnel", len(entries)),
			Remediation: "chain introductory missions so participants have a clear start",
		})
	}

	for _, orphan := range FindOrphans(snapshot) {
		issues = append(issues, Issue{
			Severity:    SeverityMedium,
			Code:        "ORPHAN_MISSION",
			MissionIDs:  []string{orphan},
			Message:     fmt.Sprintf("mission %s is disconnected from the graph", orphan),
			Remediation: "connect the mission with a dependency or remove it",
		})
	}

	deadEnds := FindDeadEnds(snapshot)
	if len(deadEnds) > maxDeadEnds {
		issues = append(issues, Issue{
			Severity:    SeverityLow,
			Code:        "EXCESS_DEAD_ENDS",
			MissionIDs:  deadEnds,
			Message:     fmt.Sprintf("%d missions end the funnel", len(deadEnds)),
			Remediation: "converge trailing missions toward a shared finale",
		})
	}

	for _, missionID := range missionIDs {
		mission := snapshot.Missions[missionID]
		if mission.ExperienceReward == 0 && mission.CurrencyReward == 0 && len(mission.Competencies) == 0 {
			issues = append(issues, Issue{
				Severity:    SeverityLow,
				Code:        "MISSING_REWARD",
				MissionIDs:  []string{missionID},
				Message:     fmt.Sprintf("mission %s grants no reward", missionID),
				Remediation: "set an experience, currency, or competency reward",
			})
		}
		if mission.Description == "" {
			issues = append(issues, Issue{
				Severity:    SeverityLow,
				Code:        "MISSING_DESCRIPTION",
				MissionIDs:  []string{missionID},
				Message:     fmt.Sprintf("mission %s has no description", missionID),
				Remediation: "describe what the participant should do",
			})
		}
	}

	return buildReport(issues)
}

func buildReport(issues []Issue) Report {
	sort.SliceStable(issues, func(i, j int) bool {
		return severityOrder(issues[i].Severity) < severityOrder(issues[j].Severity)
	})

	penalty := 0
	valid := true
	for _, issue := range issues {
		penalty += severityWeight(issue.Severity)
		if issue.Severity == SeverityCritical || issue.Severity == SeverityHigh {
			valid = false
		}
	}
	score := 100 - penalty
	if score < 0 {
		score = 0
	}
	return Report{Issues: issues, IsValid: valid, HealthScore: score}
}

// dfs node coloring
type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS path
	black              // fully explored
)

// DetectCycles runs a colored DFS over the dependency edges and returns the
// first cycle found as the mission path from the repeated node onward. The
// result is empty iff the edge set is acyclic. Edges referencing unknown
// missions are ignored here; the validator has no record to walk into.
func DetectCycles(snapshot domain.Snapshot) []string {
	colors := make(map[string]color, len(snapshot.Missions))
	var path []string
	var cycle []string

	var visit func(missionID string) bool
	visit = func(missionID string) bool {
		colors[missionID] = gray
		path = append(path, missionID)

		for _, next := range snapshot.DependentTargets(missionID) {
			if _, known := snapshot.Missions[next]; !known {
				continue
			}
			switch colors[next] {
			case gray:
				// Back edge: slice the current path from the repeated node.
				for i, onPath := range path {
					if onPath == next {
						cycle = append([]string{}, path[i:]...)
						return true
					}
				}
			case white:
				if visit(next) {
					return true
				}
			}
		}

		colors[missionID] = black
		path = path[:len(path)-1]
		return false
	}

	for _, missionID := range snapshot.MissionIDs() {
		if colors[missionID] == white {
			if visit(missionID) {
				return cycle
			}
		}
	}
	return nil
}

// FindEntryPoints returns missions with no incoming dependency edges.
func FindEntryPoints(snapshot domain.Snapshot) []string {
	return snapshot.EntryMissionIDs()
}

// FindOrphans returns zero-degree missions when the campaign has more than
// one mission. A single-mission campaign is trivially connected.
func FindOrphans(snapshot domain.Snapshot) []string {
	if len(snapshot.Missions) <= 1 {
		return nil
	}
	var orphans []string
	for _, missionID := range snapshot.MissionIDs() {
		if len(snapshot.RequiredSources(missionID)) == 0 && len(snapshot.DependentTargets(missionID)) == 0 {
			orphans = append(orphans, missionID)
		}
	}
	return orphans
}

// FindDeadEnds returns missions with no outgoing dependency edges.
func FindDeadEnds(snapshot domain.Snapshot) []string {
	var deadEnds []string
	for _, missionID := range snapshot.MissionIDs() {
		if len(snapshot.DependentTargets(missionID)) == 0 {
			deadEnds = append(deadEnds, missionID)
		}
	}
	return deadEnds
}
