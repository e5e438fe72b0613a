package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/questline/internal/platform/id"
)

var (
	// ErrEmptyCampaignName indicates a missing campaign name.
	ErrEmptyCampaignName = errors.New("campaign name is required")
	// ErrEmptyCampaignID indicates a missing campaign id.
	ErrEmptyCampaignID = errors.New("campaign id is required")
	// ErrEmptyMissionName indicates a missing mission name.
	ErrEmptyMissionName = errors.New("mission name is required")
	// ErrInvalidConfirmationType indicates an unrecognized confirmation type.
	ErrInvalidConfirmationType = errors.New("confirmation type is invalid")
	// ErrSelfDependency indicates a mission depending on itself.
	ErrSelfDependency = errors.New("mission cannot depend on itself")
)

// Campaign represents one mission funnel. A campaign may be a variant of a
// parent campaign used for A/B comparison.
type Campaign struct {
	ID        string
	Name      string
	Active    bool
	ParentID  string // empty unless this campaign is a variant
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateCampaignInput describes the metadata needed to create a campaign.
type CreateCampaignInput struct {
	Name     string
	Active   bool
	ParentID string
}

// CreateCampaign creates a new campaign with a generated ID and timestamps.
func CreateCampaign(input CreateCampaignInput, now func() time.Time, idGenerator func() (string, error)) (Campaign, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Campaign{}, ErrEmptyCampaignName
	}

	campaignID, err := idGenerator()
	if err != nil {
		return Campaign{}, fmt.Errorf("generate campaign id: %w", err)
	}

	createdAt := now().UTC()
	return Campaign{
		ID:        campaignID,
		Name:      input.Name,
		Active:    input.Active,
		ParentID:  strings.TrimSpace(input.ParentID),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

// ConfirmationType describes how a mission submission is confirmed.
type ConfirmationType string

const (
	// ConfirmationAuto completes the mission immediately on submit.
	ConfirmationAuto ConfirmationType = "AUTO"
	// ConfirmationManualReview parks the submission for reviewer approval.
	ConfirmationManualReview ConfirmationType = "MANUAL_REVIEW"
	// ConfirmationQRScan requires a verified check-in payload.
	ConfirmationQRScan ConfirmationType = "QR_SCAN"
)

// Valid reports whether the confirmation type is a known value.
func (c ConfirmationType) Valid() bool {
	switch c {
	case ConfirmationAuto, ConfirmationManualReview, ConfirmationQRScan:
		return true
	}
	return false
}

// CompetencyGrant awards points toward one competency on mission completion.
type CompetencyGrant struct {
	CompetencyID string
	Points       int
}

// Mission is a single task node in a campaign's dependency graph.
type Mission struct {
	ID               string
	CampaignID       string
	Name             string
	Description      string
	Type             string
	ExperienceReward int
	CurrencyReward   int
	ConfirmationType ConfirmationType
	MinRank          int
	Competencies     []CompetencyGrant
}

// CreateMissionInput describes the metadata needed to create a mission.
type CreateMissionInput struct {
	CampaignID       string
	Name             string
	Description      string
	Type             string
	ExperienceReward int
	CurrencyReward   int
	ConfirmationType ConfirmationType
	MinRank          int
	Competencies     []CompetencyGrant
}

// CreateMission creates a new mission with a generated ID.
func CreateMission(input CreateMissionInput, idGenerator func() (string, error)) (Mission, error) {
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.CampaignID = strings.TrimSpace(input.CampaignID)
	if input.CampaignID == "" {
		return Mission{}, ErrEmptyCampaignID
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Mission{}, ErrEmptyMissionName
	}
	if !input.ConfirmationType.Valid() {
		return Mission{}, ErrInvalidConfirmationType
	}

	missionID, err := idGenerator()
	if err != nil {
		return Mission{}, fmt.Errorf("generate mission id: %w", err)
	}

	return Mission{
		ID:               missionID,
		CampaignID:       input.CampaignID,
		Name:             input.Name,
		Description:      strings.TrimSpace(input.Description),
		Type:             strings.TrimSpace(input.Type),
		ExperienceReward: input.ExperienceReward,
		CurrencyReward:   input.CurrencyReward,
		ConfirmationType: input.ConfirmationType,
		MinRank:          input.MinRank,
		Competencies:     input.Competencies,
	}, nil
}

// Dependency is a directed edge: Target requires Source completed first.
type Dependency struct {
	SourceMissionID string
	TargetMissionID string
}

// NewDependency validates and creates a dependency edge.
func NewDependency(sourceMissionID, targetMissionID string) (Dependency, error) {
	sourceMissionID = strings.TrimSpace(sourceMissionID)
	targetMissionID = strings.TrimSpace(targetMissionID)
	if sourceMissionID == "" || targetMissionID == "" {
		return Dependency{}, errors.New("dependency mission ids are required")
	}
	if sourceMissionID == targetMissionID {
		return Dependency{}, ErrSelfDependency
	}
	return Dependency{SourceMissionID: sourceMissionID, TargetMissionID: targetMissionID}, nil
}

// Competency names a skill tracked by rank requirements and mission grants.
type Competency struct {
	ID   string
	Name string
}
