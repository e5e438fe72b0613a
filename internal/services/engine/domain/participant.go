package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/questline/internal/platform/id"
)

// InitialRankLevel is the rank every participant starts at and returns to on reset.
const InitialRankLevel = 1

// ErrEmptyDisplayName indicates a missing participant display name.
var ErrEmptyDisplayName = errors.New("participant display name is required")

// Participant is a user progressing through campaigns. Aggregate fields are
// mutated through increment-style storage updates only.
type Participant struct {
	ID           string
	DisplayName  string
	Experience   int
	Currency     int
	RankLevel    int
	Competencies map[string]int // competency id -> accumulated points
	Sandbox      bool           // true for simulation shadow identities
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateParticipantInput describes the metadata needed to create a participant.
type CreateParticipantInput struct {
	DisplayName string
	Sandbox     bool
}

// CreateParticipant creates a participant at the initial rank with zeroed totals.
func CreateParticipant(input CreateParticipantInput, now func() time.Time, idGenerator func() (string, error)) (Participant, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if input.DisplayName == "" {
		return Participant{}, ErrEmptyDisplayName
	}

	participantID, err := idGenerator()
	if err != nil {
		return Participant{}, fmt.Errorf("generate participant id: %w", err)
	}

	createdAt := now().UTC()
	return Participant{
		ID:          participantID,
		DisplayName: input.DisplayName,
		RankLevel:   InitialRankLevel,
		Sandbox:     input.Sandbox,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// VariantAssignment maps a participant to the campaign variant they were
// routed to. RootCampaignID is the campaign the assignment was requested for.
type VariantAssignment struct {
	ParticipantID  string
	RootCampaignID string
	CampaignID     string
	AssignedAt     time.Time
}
