// Package storage defines the persistence boundary for the progression
// engine. Implementations must make every mutating primitive atomic and
// expose InTx so the service layer can compose a status transition, reward
// grant, unlock propagation, and rank evaluation into one transaction.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/questline/internal/services/engine/domain"
)

// ErrNotFound indicates a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// RecordMutation carries optional field updates applied alongside a status
// transition. Nil pointers leave the stored value untouched.
type RecordMutation struct {
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Submission      *string
	ReviewerComment *string
	UpdatedAt       time.Time
}

// Store is the engine persistence boundary. The value passed to an InTx
// callback is itself a Store whose operations join the open transaction.
type Store interface {
	// InTx runs fn inside a single transaction. The sequence a completion
	// performs (transition, reward, unlock, rank) must go through here.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Campaign graph reads and authoring writes.
	PutCampaign(ctx context.Context, campaign domain.Campaign) error
	GetCampaign(ctx context.Context, campaignID string) (domain.Campaign, error)
	SetCampaignActive(ctx context.Context, campaignID string, active bool) error
	ListActiveVariants(ctx context.Context, parentID string) ([]domain.Campaign, error)
	PutMission(ctx context.Context, mission domain.Mission) error
	GetMission(ctx context.Context, missionID string) (domain.Mission, error)
	ListMissions(ctx context.Context, campaignID string) ([]domain.Mission, error)
	PutDependency(ctx context.Context, dep domain.Dependency) error
	ListDependencies(ctx context.Context, campaignID string) ([]domain.Dependency, error)
	PutCompetency(ctx context.Context, competency domain.Competency) error
	ListCompetencies(ctx context.Context) ([]domain.Competency, error)

	// Rank ladders. An empty campaignID addresses the global ladder.
	PutRank(ctx context.Context, rank domain.Rank) error
	ListRanks(ctx context.Context, campaignID string) ([]domain.Rank, error)

	// Participants. Aggregate totals move through increments only so two
	// concurrent completions cannot lose an update.
	PutParticipant(ctx context.Context, participant domain.Participant) error
	GetParticipant(ctx context.Context, participantID string) (domain.Participant, error)
	IncrementParticipantTotals(ctx context.Context, participantID string, experience, currency int) error
	AddCompetencyPoints(ctx context.Context, participantID, competencyID string, points int) error
	// PromoteParticipantRank advances rank one level with a compare-and-set
	// on the expected current level. Returns false when another actor won.
	PromoteParticipantRank(ctx context.Context, participantID string, fromLevel, toLevel int) (bool, error)
	// ResetParticipantTotals zeroes experience, currency, and competency
	// points and returns the rank to the initial level.
	ResetParticipantTotals(ctx context.Context, participantID string) error
	CountCompletedMissions(ctx context.Context, participantID, campaignID string) (int, error)

	// Progression records.
	PutRecord(ctx context.Context, record domain.ProgressionRecord) error
	GetRecord(ctx context.Context, participantID, missionID string) (domain.ProgressionRecord, error)
	ListRecords(ctx context.Context, participantID, campaignID string) ([]domain.ProgressionRecord, error)
	// TransitionRecord performs an atomic check-then-write: the row moves
	// from "from" to "to" only if it is still in "from". Returns false when
	// the guard fails, so concurrent actors collapse to one winner.
	TransitionRecord(ctx context.Context, participantID, missionID string, from, to domain.Status, mutation RecordMutation) (bool, error)
	// UnlockRecord promotes a LOCKED or absent record to AVAILABLE. Records
	// already AVAILABLE or further along are untouched. Returns true only
	// when a record was newly unlocked.
	UnlockRecord(ctx context.Context, participantID, missionID, campaignID string, now time.Time) (bool, error)
	DeleteRecords(ctx context.Context, participantID, campaignID string) error

	// Reward grants arbitrate exactly-once reward application per
	// (participant, mission). InsertRewardGrant returns false when the pair
	// was already rewarded.
	InsertRewardGrant(ctx context.Context, participantID, missionID string, grantedAt time.Time) (bool, error)
	DeleteRewardGrants(ctx context.Context, participantID, campaignID string) error

	// Variant assignments.
	PutAssignment(ctx context.Context, assignment domain.VariantAssignment) error
	GetAssignment(ctx context.Context, participantID, rootCampaignID string) (domain.VariantAssignment, error)
	CountAssignments(ctx context.Context, campaignID string) (int, error)
	DeleteAssignment(ctx context.Context, participantID, rootCampaignID string) error

	Close() error
}
