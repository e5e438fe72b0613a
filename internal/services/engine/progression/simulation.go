package progression

import (
	"context"
	stderrors "errors"

	engineerrors "github.com/louisbranch/questline/internal/errors"
	"github.com/louisbranch/questline/internal/services/engine/domain"
	"github.com/louisbranch/questline/internal/services/engine/storage"
)

// sandboxID derives the fixed shadow identity for a campaign. One sandbox
// participant exists per campaign so concurrent authors share a dry run.
func sandboxID(campaignID string) string {
	return "sandbox-" + campaignID
}

// SandboxParticipant returns the campaign's shadow identity, creating it and
// bootstrapping its records on first use.
func (s *Service) SandboxParticipant(ctx context.Context, campaignID string) (domain.Participant, error) {
	ctx, span := s.tracer.Start(ctx, "progression.SandboxParticipant")
	defer span.End()

	if err := s.ready(); err != nil {
		return domain.Participant{}, err
	}
	if err := requireIDs([2]string{"campaign", campaignID}); err != nil {
		return domain.Participant{}, err
	}

	participantID := sandboxID(campaignID)
	participant, err := s.store.GetParticipant(ctx, participantID)
	if err == nil {
		return participant, nil
	}
	if !stderrors.Is(err, storage.ErrNotFound) {
		return domain.Participant{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load sandbox participant", err)
	}

	snapshot, err := s.snapshot(ctx, campaignID)
	if err != nil {
		return domain.Participant{}, err
	}

	now := s.now()
	participant = domain.Participant{
		ID:          participantID,
		DisplayName: "Simulation " + snapshot.Campaign.Name,
		RankLevel:   domain.InitialRankLevel,
		Sandbox:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.PutParticipant(ctx, participant); err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "create sandbox participant", err)
		}
		return bootstrapRecords(ctx, tx, snapshot, participantID, now)
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return participant, nil
}

// QuickComplete drives one mission through the full completion sequence for
// the campaign's sandbox identity, bypassing the confirmation gate. Dependency
// locking still applies, so authors exercise the same unlock ordering their
// participants will see.
func (s *Service) QuickComplete(ctx context.Context, campaignID, missionID string) (ActionResult, error) {
	ctx, span := s.tracer.Start(ctx, "progression.QuickComplete")
	defer span.End()

	if err := s.ready(); err != nil {
		return ActionResult{}, err
	}
	if err := requireIDs([2]string{"campaign", campaignID}, [2]string{"mission", missionID}); err != nil {
		return ActionResult{}, err
	}

	participant, err := s.SandboxParticipant(ctx, campaignID)
	if err != nil {
		return ActionResult{}, err
	}
	snapshot, err := s.snapshot(ctx, campaignID)
	if err != nil {
		return ActionResult{}, err
	}
	mission, ok := snapshot.Missions[missionID]
	if !ok {
		return ActionResult{}, engineerrors.New(engineerrors.CodeMissionNotFound, "mission does not exist in this campaign")
	}

	var result ActionResult
	var notifications []domain.Notification
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		from, err := submittableOrPendingStatus(ctx, tx, participant.ID, missionID)
		if err != nil {
			return err
		}
		outcome, err := s.completeMission(ctx, tx, snapshot, participant.ID, mission, from, nil)
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

// ResetSimulation re-bootstraps the sandbox identity's run without deleting
// the identity itself.
func (s *Service) ResetSimulation(ctx context.Context, campaignID string) error {
	ctx, span := s.tracer.Start(ctx, "progression.ResetSimulation")
	defer span.End()

	if err := s.ready(); err != nil {
		return err
	}
	if err := requireIDs([2]string{"campaign", campaignID}); err != nil {
		return err
	}

	participant, err := s.SandboxParticipant(ctx, campaignID)
	if err != nil {
		return err
	}
	return s.Reset(ctx, participant.ID, campaignID, true)
}
