// Package policy decides which roles may perform which engine actions.
package policy

import (
	engineerrors "github.com/louisbranch/questline/internal/errors"
)

// Role is the caller's position relative to the engine.
type Role string

const (
	// RoleParticipant is a user progressing through campaigns.
	RoleParticipant Role = "PARTICIPANT"
	// RoleReviewer approves and rejects manual review submissions.
	RoleReviewer Role = "REVIEWER"
	// RoleAdmin operates campaigns and participant state.
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleParticipant, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

// Action is one engine operation subject to a permission check.
type Action string

const (
	ActionAssign        Action = "ASSIGN"
	ActionSubmit        Action = "SUBMIT"
	ActionCheckIn       Action = "CHECK_IN"
	ActionViewProgress  Action = "VIEW_PROGRESS"
	ActionApprove       Action = "APPROVE"
	ActionReject        Action = "REJECT"
	ActionValidateGraph Action = "VALIDATE_GRAPH"
	ActionSimulate      Action = "SIMULATE"
	ActionReset         Action = "RESET"
	ActionBulkProgress  Action = "BULK_PROGRESS"
	ActionRemove        Action = "REMOVE"
	ActionPublish       Action = "PUBLISH"
)

// permissions maps each role to the actions it may perform. Admins hold
// every permission below plus their own.
var permissions = map[Role]map[Action]bool{
	RoleParticipant: {
		ActionAssign:       true,
		ActionSubmit:       true,
		ActionCheckIn:      true,
		ActionViewProgress: true,
	},
	RoleReviewer: {
		ActionApprove:       true,
		ActionReject:        true,
		ActionViewProgress:  true,
		ActionValidateGraph: true,
	},
}

// Allowed reports whether the role may perform the action.
func Allowed(role Role, action Action) bool {
	if role == RoleAdmin {
		return role.Valid()
	}
	return permissions[role][action]
}

// Check returns a permission error unless the role may perform the action.
func Check(role Role, action Action) error {
	if Allowed(role, action) {
		return nil
	}
	return engineerrors.WithMetadata(engineerrors.CodePermissionDenied,
		"role is not permitted to perform this action",
		map[string]string{"role": string(role), "action": string(action)})
}
