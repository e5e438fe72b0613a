package progression

import (
	"context"
	stderrors "errors"

	engineerrors "github.com/louisbranch/questline/internal/errors"
	"github.com/louisbranch/questline/internal/services/engine/domain"
	"github.com/louisbranch/questline/internal/services/engine/storage"
)

// ActionResult reports the record's status after a participant action and
// any downstream effects when the action completed the mission.
type ActionResult struct {
	Status    domain.Status
	Unlocked  []string
	Promotion PromotionResult
}

// Start moves an AVAILABLE record to IN_PROGRESS and stamps startedAt.
func (s *Service) Start(ctx context.Context, participantID, missionID string) (ActionResult, error) {
	ctx, span := s.tracer.Start(ctx, "progression.Start")
	defer span.End()

	if err := s.ready(); err != nil {
		return ActionResult{}, err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"mission", missionID}); err != nil {
		return ActionResult{}, err
	}

	now := s.now()
	var result ActionResult
	err := s.store.InTx(ctx, func(tx storage.Store) error {
		moved, err := tx.TransitionRecord(ctx, participantID, missionID, domain.StatusAvailable, domain.StatusInProgress, storage.RecordMutation{
			StartedAt: &now,
			UpdatedAt: now,
		})
		if err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "start mission", err)
		}
		if !moved {
			return s.transitionConflict(ctx, tx, participantID, missionID, domain.StatusAvailable)
		}
		result.Status = domain.StatusInProgress
		return nil
	})
	return result, err
}

// Submit applies a participant's submission to an AVAILABLE or IN_PROGRESS
// mission. AUTO missions complete immediately; MANUAL_REVIEW and QR_SCAN
// missions park in PENDING_REVIEW.
func (s *Service) Submit(ctx context.Context, participantID, missionID, payload string) (ActionResult, error) {
	ctx, span := s.tracer.Start(ctx, "progression.Submit")
	defer span.End()

	if err := s.ready(); err != nil {
		return ActionResult{}, err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"mission", missionID}); err != nil {
		return ActionResult{}, err
	}

	snapshot, mission, err := s.missionSnapshot(ctx, missionID)
	if err != nil {
		return ActionResult{}, err
	}
	participant, err := s.getParticipant(ctx, s.store, participantID)
	if err != nil {
		return ActionResult{}, err
	}
	if participant.RankLevel < mission.MinRank {
		return ActionResult{}, engineerrors.WithMetadata(engineerrors.CodeMinRankNotMet,
			"participant rank is below the mission's minimum",
			map[string]string{"mission_id": mission.ID})
	}
	if s.validator != nil {
		if err := s.validator.Validate(mission, payload); err != nil {
			return ActionResult{}, err
		}
	}

	var result ActionResult
	var notifications []domain.Notification
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		from, err := submittableStatus(ctx, tx, participantID, missionID)
		if err != nil {
			return err
		}

		if mission.ConfirmationType == domain.ConfirmationAuto {
			outcome, err := s.completeMission(ctx, tx, snapshot, participantID, mission, from, &payload)
			if err != nil {
				return err
			}
			result = ActionResult{Status: domain.StatusCompleted, Unlocked: outcome.Unlocked, Promotion: outcome.Promotion}
			notifications = outcome.notifications
			return nil
		}

		now := s.now()
		mutation := storage.RecordMutation{Submission: &payload, UpdatedAt: now}
		if from == domain.StatusAvailable {
			mutation.StartedAt = &now
		}
		moved, err := tx.TransitionRecord(ctx, participantID, missionID, from, domain.StatusPendingReview, mutation)
		if err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "submit mission", err)
		}
		if !moved {
			return s.transitionConflict(ctx, tx, participantID, missionID, from)
		}
		result = ActionResult{Status: domain.StatusPendingReview}
		return nil
	})
	if err != nil {
		return ActionResult{}, err
	}
	s.dispatch(ctx, notifications)
	return result, nil
}

// Approve completes a PENDING_REVIEW mission on a reviewer's behalf. A second
// approval of the same record is a conflict, never a second reward.
func (s *Service) Approve(ctx context.Context, participantID, missionID string) (ActionResult, error) {
	ctx, span := s.tracer.Start(ctx, "progression.Approve")
	defer span.End()

	if err := s.ready(); err != nil {
		return ActionResult{}, err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"mission", missionID}); err != nil {
		return ActionResult{}, err
	}

	snapshot, mission, err := s.missionSnapshot(ctx, missionID)
	if err != nil {
		return ActionResult{}, err
	}

	var result ActionResult
	var notifications []domain.Notification
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		outcome, err := s.completeMission(ctx, tx, snapshot, participantID, mission, domain.StatusPendingReview, nil)
		if err != nil {
			return err
		}
		result = ActionResult{Status: domain.StatusCompleted, Unlocked: outcome.Unlocked, Promotion: outcome.Promotion}
		notifications = append([]domain.Notification{{
			ParticipantID: participantID,
			Kind:          domain.NotificationMissionApproved,
			Payload:       map[string]string{"mission_id": mission.ID},
		}}, outcome.notifications...)
		return nil
	})
	if err != nil {
		return ActionResult{}, err
	}
	s.dispatch(ctx, notifications)
	return result, nil
}

// Reject returns a PENDING_REVIEW mission to AVAILABLE with the reviewer's
// comment attached. The submission stays on the record and resubmission is
// unlimited; no reward is granted.
func (s *Service) Reject(ctx context.Context, participantID, missionID, comment string) (ActionResult, error) {
	ctx, span := s.tracer.Start(ctx, "progression.Reject")
	defer span.End()

	if err := s.ready(); err != nil {
		return ActionResult{}, err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"mission", missionID}); err != nil {
		return ActionResult{}, err
	}

	var result ActionResult
	err := s.store.InTx(ctx, func(tx storage.Store) error {
		moved, err := tx.TransitionRecord(ctx, participantID, missionID, domain.StatusPendingReview, domain.StatusAvailable, storage.RecordMutation{
			ReviewerComment: &comment,
			UpdatedAt:       s.now(),
		})
		if err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "reject mission", err)
		}
		if !moved {
			return s.transitionConflict(ctx, tx, participantID, missionID, domain.StatusPendingReview)
		}
		result = ActionResult{Status: domain.StatusAvailable}
		return nil
	})
	if err != nil {
		return ActionResult{}, err
	}
	s.dispatch(ctx, []domain.Notification{{
		ParticipantID: participantID,
		Kind:          domain.NotificationMissionRejected,
		Payload:       map[string]string{"mission_id": missionID, "comment": comment},
	}})
	return result, nil
}

// CheckIn completes a QR_SCAN mission from a verified scan payload. The scan
// stands in for reviewer approval; an AVAILABLE record completes directly.
func (s *Service) CheckIn(ctx context.Context, participantID, missionID, signedPayload string) (ActionResult, error) {
	ctx, span := s.tracer.Start(ctx, "progression.CheckIn")
	defer span.End()

	if err := s.ready(); err != nil {
		return ActionResult{}, err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"mission", missionID}); err != nil {
		return ActionResult{}, err
	}
	if s.verifier == nil {
		return ActionResult{}, engineerrors.New(engineerrors.CodeCheckInInvalid, "check-in is not configured")
	}

	verified, err := s.verifier.Verify(signedPayload)
	if err != nil {
		return ActionResult{}, err
	}
	if verified.MissionID != missionID {
		return ActionResult{}, engineerrors.New(engineerrors.CodeCheckInInvalid, "check-in payload is for another mission")
	}

	snapshot, mission, err := s.missionSnapshot(ctx, missionID)
	if err != nil {
		return ActionResult{}, err
	}
	if mission.ConfirmationType != domain.ConfirmationQRScan {
		return ActionResult{}, engineerrors.New(engineerrors.CodeCheckInInvalid, "mission does not accept check-ins")
	}

	var result ActionResult
	var notifications []domain.Notification
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		from, err := submittableOrPendingStatus(ctx, tx, participantID, missionID)
		if err != nil {
			return err
		}
		outcome, err := s.completeMission(ctx, tx, snapshot, participantID, mission, from, nil)
		if err != nil {
			return err
		}
		result = ActionResult{Status: domain.StatusCompleted, Unlocked: outcome.Unlocked, Promotion: outcome.Promotion}
		notifications = outcome.notifications
		return nil
	})
	if err != nil {
		return ActionResult{}, err
	}
	s.dispatch(ctx, notifications)
	return result, nil
}

// missionSnapshot resolves a mission id to its campaign snapshot.
func (s *Service) missionSnapshot(ctx context.Context, missionID string) (domain.Snapshot, domain.Mission, error) {
	mission, err := s.store.GetMission(ctx, missionID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return domain.Snapshot{}, domain.Mission{}, engineerrors.New(engineerrors.CodeMissionNotFound, "mission does not exist")
		}
		return domain.Snapshot{}, domain.Mission{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load mission", err)
	}
	snapshot, err := s.snapshot(ctx, mission.CampaignID)
	if err != nil {
		return domain.Snapshot{}, domain.Mission{}, err
	}
	return snapshot, mission, nil
}

// submittableStatus returns the record's current status when a submission is
// permitted from it.
func submittableStatus(ctx context.Context, tx storage.Store, participantID, missionID string) (domain.Status, error) {
	record, err := tx.GetRecord(ctx, participantID, missionID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return "", engineerrors.New(engineerrors.CodeMissionNotFound, "no progression record for this mission")
		}
		return "", engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load record", err)
	}
	switch record.Status {
	case domain.StatusAvailable, domain.StatusInProgress:
		return record.Status, nil
	case domain.StatusLocked:
		return "", engineerrors.New(engineerrors.CodeMissionLocked, "mission is locked behind unmet dependencies")
	case domain.StatusPendingReview:
		return "", engineerrors.New(engineerrors.CodeMissionNotAvailable, "mission is awaiting review")
	case domain.StatusCompleted:
		return "", engineerrors.New(engineerrors.CodeMissionAlreadyCompleted, "mission is already completed")
	}
	return "", engineerrors.New(engineerrors.CodeMissionNotAvailable, "mission is not available")
}

// submittableOrPendingStatus additionally accepts PENDING_REVIEW, for
// check-ins that arrive after a submission parked the record.
func submittableOrPendingStatus(ctx context.Context, tx storage.Store, participantID, missionID string) (domain.Status, error) {
	record, err := tx.GetRecord(ctx, participantID, missionID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return "", engineerrors.New(engineerrors.CodeMissionNotFound, "no progression record for this mission")
		}
		return "", engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load record", err)
	}
	switch record.Status {
	case domain.StatusAvailable, domain.StatusInProgress, domain.StatusPendingReview:
		return record.Status, nil
	case domain.StatusLocked:
		return "", engineerrors.New(engineerrors.CodeMissionLocked, "mission is locked behind unmet dependencies")
	case domain.StatusCompleted:
		return "", engineerrors.New(engineerrors.CodeMissionAlreadyCompleted, "mission is already completed")
	}
	return "", engineerrors.New(engineerrors.CodeMissionNotAvailable, "mission is not available")
}
