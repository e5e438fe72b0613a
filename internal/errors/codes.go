// Package errors provides structured error handling for the progression engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeCampaignIDRequired    Code = "CAMPAIGN_ID_REQUIRED"
	CodeParticipantIDRequired Code = "PARTICIPANT_ID_REQUIRED"
	CodeMissionIDRequired     Code = "MISSION_ID_REQUIRED"
	CodeSubmissionInvalid     Code = "SUBMISSION_INVALID"
	CodeCheckInInvalid        Code = "CHECK_IN_INVALID"
	CodeGraphCycle            Code = "GRAPH_CYCLE"
	CodeResetNotConfirmed     Code = "RESET_NOT_CONFIRMED"

	// Not-found errors
	CodeNotFound            Code = "NOT_FOUND"
	CodeCampaignNotFound    Code = "CAMPAIGN_NOT_FOUND"
	CodeMissionNotFound     Code = "MISSION_NOT_FOUND"
	CodeParticipantNotFound Code = "PARTICIPANT_NOT_FOUND"
	CodeRankNotFound        Code = "RANK_NOT_FOUND"

	// Conflict errors: the record state disallows the operation
	CodeMissionLocked           Code = "MISSION_LOCKED"
	CodeMissionNotAvailable     Code = "MISSION_NOT_AVAILABLE"
	CodeMissionNotPendingReview Code = "MISSION_NOT_PENDING_REVIEW"
	CodeMissionAlreadyCompleted Code = "MISSION_ALREADY_COMPLETED"
	CodeDependenciesUnmet       Code = "DEPENDENCIES_UNMET"
	CodeRewardAlreadyGranted    Code = "REWARD_ALREADY_GRANTED"
	CodeMinRankNotMet           Code = "MIN_RANK_NOT_MET"
	CodeCampaignInactive        Code = "CAMPAIGN_INACTIVE"
	CodeCampaignUnpublishable   Code = "CAMPAIGN_UNPUBLISHABLE"

	// Permission errors
	CodePermissionDenied Code = "PERMISSION_DENIED"

	// Transient errors, safe to retry since every mutation is idempotent
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeCampaignIDRequired,
		CodeParticipantIDRequired,
		CodeMissionIDRequired,
		CodeSubmissionInvalid,
		CodeCheckInInvalid,
		CodeGraphCycle,
		CodeResetNotConfirmed:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeMissionLocked,
		CodeMissionNotAvailable,
		CodeMissionNotPendingReview,
		CodeMissionAlreadyCompleted,
		CodeDependenciesUnmet,
		CodeRewardAlreadyGranted,
		CodeMinRankNotMet,
		CodeCampaignInactive,
		CodeCampaignUnpublishable:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeCampaignNotFound,
		CodeMissionNotFound,
		CodeParticipantNotFound,
		CodeRankNotFound:
		return codes.NotFound

	case CodePermissionDenied:
		return codes.PermissionDenied

	case CodeStoreUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
