package domain

import (
	"fmt"
	"sort"
)

// Rank is one tier of a promotion ladder. A ladder is campaign-scoped when
// CampaignID is set; a campaign ladder entirely replaces the global ladder,
// levels are never mixed between the two.
type Rank struct {
	CampaignID           string // empty for the global ladder
	Level                int
	Name                 string
	MinExperience        int
	MinMissions          int
	RequiredCompetencies map[string]int // competency id -> minimum points
	RewardExperience     int
	RewardCurrency       int
}

// Ladder is an ordered set of ranks for one scope.
type Ladder struct {
	ranks map[int]Rank
}

// NewLadder builds a ladder from rank rows, keyed by level.
func NewLadder(ranks []Rank) Ladder {
	byLevel := make(map[int]Rank, len(ranks))
	for _, r := range ranks {
		byLevel[r.Level] = r
	}
	return Ladder{ranks: byLevel}
}

// At returns the rank at the given level, if defined.
func (l Ladder) At(level int) (Rank, bool) {
	r, ok := l.ranks[level]
	return r, ok
}

// Empty reports whether the ladder has no ranks.
func (l Ladder) Empty() bool {
	return len(l.ranks) == 0
}

// Levels returns the defined levels in ascending order.
func (l Ladder) Levels() []int {
	levels := make([]int, 0, len(l.ranks))
	for level := range l.ranks {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	return levels
}

// RankGap describes one unmet promotion requirement in human-readable form.
type RankGap struct {
	Requirement string
	Current     int
	Required    int
	Unit        string // appended when set, e.g. "points"
}

// String renders the gap as e.g. "communication: 15/20 points".
func (g RankGap) String() string {
	if g.Unit == "" {
		return fmt.Sprintf("%s: %d/%d", g.Requirement, g.Current, g.Required)
	}
	return fmt.Sprintf("%s: %d/%d %s", g.Requirement, g.Current, g.Required, g.Unit)
}

// EvaluateRank checks one participant's stats against a candidate rank.
// It returns the list of unmet requirements; an empty list means eligible.
func EvaluateRank(candidate Rank, experience, completedMissions int, competencyPoints map[string]int) []RankGap {
	var gaps []RankGap
	if experience < candidate.MinExperience {
		gaps = append(gaps, RankGap{Requirement: "experience", Current: experience, Required: candidate.MinExperience})
	}
	if completedMissions < candidate.MinMissions {
		gaps = append(gaps, RankGap{Requirement: "missions", Current: completedMissions, Required: candidate.MinMissions})
	}
	ids := make([]string, 0, len(candidate.RequiredCompetencies))
	for competencyID := range candidate.RequiredCompetencies {
		ids = append(ids, competencyID)
	}
	sort.Strings(ids)
	for _, competencyID := range ids {
		required := candidate.RequiredCompetencies[competencyID]
		if competencyPoints[competencyID] < required {
			gaps = append(gaps, RankGap{
				Requirement: competencyID,
				Current:     competencyPoints[competencyID],
				Required:    required,
				Unit:        "points",
			})
		}
	}
	return gaps
}

// OnlyCompetencyGapsRemain reports whether every unmet requirement is a
// competency threshold, meaning experience and mission count already pass.
func OnlyCompetencyGapsRemain(gaps []RankGap) bool {
	if len(gaps) == 0 {
		return false
	}
	for _, gap := range gaps {
		if gap.Requirement == "experience" || gap.Requirement == "missions" {
			return false
		}
	}
	return true
}
