package graph

import (
	"testing"

	"github.com/louisbranch/questline/internal/services/engine/domain"
)

func mission(missionID string) domain.Mission {
	return domain.Mission{
		ID:               missionID,
		CampaignID:       "c1",
		Name:             missionID,
		Description:      "do the thing",
		ExperienceReward: 10,
		ConfirmationType: domain.ConfirmationAuto,
	}
}

func snapshotOf(missions []domain.Mission, deps []domain.Dependency) domain.Snapshot {
	return domain.NewSnapshot(domain.Campaign{ID: "c1"}, missions, deps, domain.Ladder{})
}

func TestDetectCyclesOnDAG(t *testing.T) {
	snapshot := snapshotOf(
		[]domain.Mission{mission("m1"), mission("m2"), mission("m3")},
		[]domain.Dependency{
			{SourceMissionID: "m1", TargetMissionID: "m2"},
			{SourceMissionID: "m1", TargetMissionID: "m3"},
			{SourceMissionID: "m2", TargetMissionID: "m3"},
		},
	)
	if cycle := DetectCycles(snapshot); len(cycle) != 0 {
		t.Fatalf("expected no cycle on DAG, got %v", cycle)
	}
}

func TestDetectCyclesOnCyclicGraph(t *testing.T) {
	snapshot := snapshotOf(
		[]domain.Mission{mission("m1"), mission("m2"), mission("m3")},
		[]domain.Dependency{
			{SourceMissionID: "m1", TargetMissionID: "m2"},
			{SourceMissionID: "m2", TargetMissionID: "m3"},
			{SourceMissionID: "m3", TargetMissionID: "m1"},
		},
	)
	cycle := DetectCycles(snapshot)
	if len(cycle) != 3 {
		t.Fatalf("expected 3-node cycle, got %v", cycle)
	}
	// The path starts at the repeated node.
	seen := map[string]bool{}
	for _, missionID := range cycle {
		if seen[missionID] {
			t.Fatalf("duplicate node in cycle path %v", cycle)
		}
		seen[missionID] = true
	}
}

func TestDetectCyclesIgnoresDanglingEdges(t *testing.T) {
	snapshot := snapshotOf(
		[]domain.Mission{mission("m1")},
		[]domain.Dependency{
			{SourceMissionID: "m1", TargetMissionID: "ghost"},
			{SourceMissionID: "ghost", TargetMissionID: "m1"},
		},
	)
	if cycle := DetectCycles(snapshot); len(cycle) != 0 {
		t.Fatalf("expected dangling edges skipped, got %v", cycle)
	}
}

func TestFindEntryPointsAndDeadEnds(t *testing.T) {
	snapshot := snapshotOf(
		[]domain.Mission{mission("m1"), mission("m2"), mission("m3")},
		[]domain.Dependency{
			{SourceMissionID: "m1", TargetMissionID: "m2"},
			{SourceMissionID: "m2", TargetMissionID: "m3"},
		},
	)

	entries := FindEntryPoints(snapshot)
	if len(entries) != 1 || entries[0] != "m1" {
		t.Fatalf("entries = %v, want [m1]", entries)
	}

	deadEnds := FindDeadEnds(snapshot)
	if len(deadEnds) != 1 || deadEnds[0] != "m3" {
		t.Fatalf("dead ends = %v, want [m3]", deadEnds)
	}
}

func TestFindOrphans(t *testing.T) {
	snapshot := snapshotOf(
		[]domain.Mission{mission("m1"), mission("m2"), mission("loner")},
		[]domain.Dependency{
			{SourceMissionID: "m1", TargetMissionID: "m2"},
		},
	)
	orphans := FindOrphans(snapshot)
	if len(orphans) != 1 || orphans[0] != "loner" {
		t.Fatalf("orphans = %v, want [loner]", orphans)
	}

	// A single-mission campaign has no orphans.
	single := snapshotOf([]domain.Mission{mission("only")}, nil)
	if orphans := FindOrphans(single); len(orphans) != 0 {
		t.Fatalf("expected no orphan in single-mission campaign, got %v", orphans)
	}
}

func TestValidateHealthyCampaign(t *testing.T) {
	report := Validate(snapshotOf(
		[]domain.Mission{mission("m1"), mission("m2"), mission("m3")},
		[]domain.Dependency{
			{SourceMissionID: "m1", TargetMissionID: "m2"},
			{SourceMissionID: "m2", TargetMissionID: "m3"},
		},
	))
	if !report.IsValid {
		t.Fatalf("expected valid report, issues: %+v", report.Issues)
	}
	if report.HealthScore != 100 {
		t.Fatalf("health score = %d, want 100", report.HealthScore)
	}
}

func TestValidateCycleIsCritical(t *testing.T) {
	report := Validate(snapshotOf(
		[]domain.Mission{mission("m1"), mission("m2")},
		[]domain.Dependency{
			{SourceMissionID: "m1", TargetMissionID: "m2"},
			{SourceMissionID: "m2", TargetMissionID: "m1"},
		},
	))
	if report.IsValid {
		t.Fatal("expected invalid report")
	}
	found := false
	for _, issue := range report.Issues {
		if issue.Code == "DEPENDENCY_CYCLE" && issue.Severity == SeverityCritical {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected critical cycle issue, got %+v", report.Issues)
	}
	// A cycle also removes every entry point: two criticals, 100-60=40.
	if report.HealthScore != 40 {
		t.Fatalf("health score = %d, want 40", report.HealthScore)
	}
}

func TestValidateEmptyCampaign(t *testing.T) {
	report := Validate(snapshotOf(nil, nil))
	if report.IsValid {
		t.Fatal("expected invalid report for empty campaign")
	}
	if len(report.Issues) != 1 || report.Issues[0].Code != "EMPTY_CAMPAIGN" {
		t.Fatalf("issues = %+v, want the single EMPTY_CAMPAIGN issue", report.Issues)
	}
	if report.HealthScore != 85 {
		t.Fatalf("health score = %d, want 85", report.HealthScore)
	}
}

func TestValidateTooManyEntryPoints(t *testing.T) {
	missions := []domain.Mission{
		mission("m1"), mission("m2"), mission("m3"),
		mission("m4"), mission("m5"), mission("m6"), mission("sink"),
	}
	var deps []domain.Dependency
	for _, source := range []string{"m1", "m2", "m3", "m4", "m5", "m6"} {
		deps = append(deps, domain.Dependency{SourceMissionID: source, TargetMissionID: "sink"})
	}
	report := Validate(snapshotOf(missions, deps))
	if report.IsValid {
		t.Fatal("expected invalid report")
	}
	found := false
	for _, issue := range report.Issues {
		if issue.Code == "TOO_MANY_ENTRY_POINTS" && issue.Severity == SeverityHigh {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected high entry-point issue, got %+v", report.Issues)
	}
}

func TestValidateLowSeverityPolish(t *testing.T) {
	bare := domain.Mission{ID: "m2", CampaignID: "c1", Name: "m2", ConfirmationType: domain.ConfirmationAuto}
	report := Validate(snapshotOf(
		[]domain.Mission{mission("m1"), bare},
		[]domain.Dependency{{SourceMissionID: "m1", TargetMissionID: "m2"}},
	))
	if !report.IsValid {
		t.Fatalf("low issues must not invalidate, got %+v", report.Issues)
	}
	var codes []string
	for _, issue := range report.Issues {
		codes = append(codes, issue.Code)
		if issue.Severity != SeverityLow {
			t.Fatalf("expected only low issues, got %+v", issue)
		}
	}
	if len(codes) != 2 {
		t.Fatalf("expected missing reward and description issues, got %v", codes)
	}
	if report.HealthScore != 96 {
		t.Fatalf("health score = %d, want 96", report.HealthScore)
	}
}

func TestValidateOrdersBySeverity(t *testing.T) {
	// Cycle (critical) + orphan (medium) + missing description (low).
	bare := domain.Mission{ID: "loner", CampaignID: "c1", Name: "loner", ExperienceReward: 5, ConfirmationType: domain.ConfirmationAuto}
	report := Validate(snapshotOf(
		[]domain.Mission{mission("m1"), mission("m2"), bare},
		[]domain.Dependency{
			{SourceMissionID: "m1", TargetMissionID: "m2"},
			{SourceMissionID: "m2", TargetMissionID: "m1"},
		},
	))
	last := -1
	for _, issue := range report.Issues {
		current := severityOrder(issue.Severity)
		if current < last {
			t.Fatalf("issues out of severity order: %+v", report.Issues)
		}
		last = current
	}
}
