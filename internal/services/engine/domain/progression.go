package domain

import "time"

// Status is the lifecycle state of one (participant, mission) record.
type Status string

const (
	// StatusLocked blocks participant actions until dependencies complete.
	StatusLocked Status = "LOCKED"
	// StatusAvailable permits submission.
	StatusAvailable Status = "AVAILABLE"
	// StatusInProgress marks a started but unsubmitted mission.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusPendingReview parks a submission for reviewer or check-in confirmation.
	StatusPendingReview Status = "PENDING_REVIEW"
	// StatusCompleted is terminal; rewards have been granted exactly once.
	StatusCompleted Status = "COMPLETED"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusLocked, StatusAvailable, StatusInProgress, StatusPendingReview, StatusCompleted:
		return true
	}
	return false
}

// order positions statuses along the forward-only lifecycle.
func (s Status) order() int {
	switch s {
	case StatusLocked:
		return 0
	case StatusAvailable:
		return 1
	case StatusInProgress:
		return 2
	case StatusPendingReview:
		return 3
	case StatusCompleted:
		return 4
	}
	return -1
}

// CanTransition reports whether a record may move from one status to another.
// Transitions are forward-only with a single exception: PENDING_REVIEW returns
// to AVAILABLE on rejection.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if from == StatusPendingReview && to == StatusAvailable {
		return true
	}
	return to.order() > from.order()
}

// ProgressionRecord is the per-participant-per-mission state machine instance.
type ProgressionRecord struct {
	ParticipantID   string
	MissionID       string
	CampaignID      string
	Status          Status
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Submission      string
	ReviewerComment string
	UpdatedAt       time.Time
}
