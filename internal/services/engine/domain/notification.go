package domain

// NotificationKind identifies an engine-emitted notification.
type NotificationKind string

const (
	// NotificationMissionCompleted fires when a mission reaches COMPLETED.
	NotificationMissionCompleted NotificationKind = "MISSION_COMPLETED"
	// NotificationMissionApproved fires when a reviewer approves a submission.
	NotificationMissionApproved NotificationKind = "MISSION_APPROVED"
	// NotificationMissionRejected fires when a reviewer rejects a submission.
	NotificationMissionRejected NotificationKind = "MISSION_REJECTED"
	// NotificationNewMissionAvailable fires once per newly unlocked mission.
	NotificationNewMissionAvailable NotificationKind = "NEW_MISSION_AVAILABLE"
	// NotificationRankUp fires on each rank promotion.
	NotificationRankUp NotificationKind = "RANK_UP"
	// NotificationRankProgress nudges a participant who only lacks competency
	// points for the next rank. At most one unread nudge exists per participant.
	NotificationRankProgress NotificationKind = "RANK_PROGRESS"
)

// Notification is one engine emission toward the external delivery sink.
type Notification struct {
	ParticipantID string
	Kind          NotificationKind
	Payload       map[string]string
}
