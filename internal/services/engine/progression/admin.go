package progression

import (
	"context"
	stderrors "errors"

	engineerrors "github.com/louisbranch/questline/internal/errors"
	"github.com/louisbranch/questline/internal/services/engine/domain"
	"github.com/louisbranch/questline/internal/services/engine/graph"
	"github.com/louisbranch/questline/internal/services/engine/storage"
)

// Reset re-bootstraps every record a participant holds in one campaign and
// zeroes their totals back to rank one. Destructive; the caller must pass
// confirm explicitly.
func (s *Service) Reset(ctx context.Context, participantID, campaignID string, confirm bool) error {
	ctx, span := s.tracer.Start(ctx, "progression.Reset")
	defer span.End()

	if err := s.ready(); err != nil {
		return err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"campaign", campaignID}); err != nil {
		return err
	}
	if !confirm {
		return engineerrors.New(engineerrors.CodeResetNotConfirmed, "reset requires explicit confirmation")
	}

	snapshot, err := s.snapshot(ctx, campaignID)
	if err != nil {
		return err
	}
	if _, err := s.getParticipant(ctx, s.store, participantID); err != nil {
		return err
	}

	return s.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.DeleteRecords(ctx, participantID, campaignID); err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "delete records", err)
		}
		if err := tx.DeleteRewardGrants(ctx, participantID, campaignID); err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "delete reward grants", err)
		}
		if err := tx.ResetParticipantTotals(ctx, participantID); err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "reset participant totals", err)
		}
		return bootstrapRecords(ctx, tx, snapshot, participantID, s.now())
	})
}

// UnlockAll force-promotes every non-completed record in the campaign to
// AVAILABLE. Completed records are left untouched.
func (s *Service) UnlockAll(ctx context.Context, participantID, campaignID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "progression.UnlockAll")
	defer span.End()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"campaign", campaignID}); err != nil {
		return nil, err
	}

	snapshot, err := s.snapshot(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	var unlocked []string
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		for _, missionID := range snapshot.MissionIDs() {
			didUnlock, err := tx.UnlockRecord(ctx, participantID, missionID, campaignID, s.now())
			if err != nil {
				return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "unlock record", err)
			}
			if didUnlock {
				unlocked = append(unlocked, missionID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unlocked, nil
}

// CompleteAll drives every remaining mission in the campaign through the
// full completion sequence, rewards included. Already-completed missions are
// skipped.
func (s *Service) CompleteAll(ctx context.Context, participantID, campaignID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "progression.CompleteAll")
	defer span.End()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"campaign", campaignID}); err != nil {
		return nil, err
	}

	snapshot, err := s.snapshot(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	var completed []string
	var notifications []domain.Notification
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		for _, missionID := range snapshot.MissionIDs() {
			mission := snapshot.Missions[missionID]
			outcome, err := s.forceComplete(ctx, tx, snapshot, participantID, mission)
			if err != nil {
				return err
			}
			if outcome == nil {
				continue
			}
			completed = append(completed, missionID)
			notifications = append(notifications, outcome.notifications...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, notifications)
	return completed, nil
}

// forceComplete completes one mission from whatever live state it is in,
// bypassing the confirmation gate. Returns nil when already completed.
func (s *Service) forceComplete(ctx context.Context, tx storage.Store, snapshot domain.Snapshot, participantID string, mission domain.Mission) (*completion, error) {
	record, err := tx.GetRecord(ctx, participantID, mission.ID)
	if err != nil {
		if !stderrors.Is(err, storage.ErrNotFound) {
			return nil, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load record", err)
		}
		record = domain.ProgressionRecord{
			ParticipantID: participantID,
			MissionID:     mission.ID,
			CampaignID:    snapshot.Campaign.ID,
			Status:        domain.StatusLocked,
			UpdatedAt:     s.now(),
		}
		if err := tx.PutRecord(ctx, record); err != nil {
			return nil, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "create record", err)
		}
	}
	if record.Status == domain.StatusCompleted {
		return nil, nil
	}

	outcome, err := s.completeMission(ctx, tx, snapshot, participantID, mission, record.Status, nil)
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

// RemoveParticipant deletes a participant's records, grants, and assignment
// for one campaign. The participant identity itself is preserved.
func (s *Service) RemoveParticipant(ctx context.Context, participantID, campaignID string) error {
	ctx, span := s.tracer.Start(ctx, "progression.RemoveParticipant")
	defer span.End()

	if err := s.ready(); err != nil {
		return err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"campaign", campaignID}); err != nil {
		return err
	}

	return s.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.DeleteRecords(ctx, participantID, campaignID); err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "delete records", err)
		}
		if err := tx.DeleteRewardGrants(ctx, participantID, campaignID); err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "delete reward grants", err)
		}
		if err := tx.DeleteAssignment(ctx, participantID, campaignID); err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "delete assignment", err)
		}
		return nil
	})
}

// MissionProgress pairs a mission with the participant's record for it.
type MissionProgress struct {
	Mission domain.Mission
	Status  domain.Status
	Record  *domain.ProgressionRecord
}

// ProgressView is one participant's standing in a campaign.
type ProgressView struct {
	Participant       domain.Participant
	Campaign          domain.Campaign
	Missions          []MissionProgress
	CompletedCount    int
	NextRank          *domain.Rank
	UnmetRequirements []string
}

// Progress returns a participant's current standing in one campaign without
// mutating anything.
func (s *Service) Progress(ctx context.Context, participantID, campaignID string) (ProgressView, error) {
	ctx, span := s.tracer.Start(ctx, "progression.Progress")
	defer span.End()

	if err := s.ready(); err != nil {
		return ProgressView{}, err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"campaign", campaignID}); err != nil {
		return ProgressView{}, err
	}

	snapshot, err := s.snapshot(ctx, campaignID)
	if err != nil {
		return ProgressView{}, err
	}
	participant, err := s.getParticipant(ctx, s.store, participantID)
	if err != nil {
		return ProgressView{}, err
	}
	records, err := s.store.ListRecords(ctx, participantID, campaignID)
	if err != nil {
		return ProgressView{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load records", err)
	}
	byMission := make(map[string]domain.ProgressionRecord, len(records))
	for _, record := range records {
		byMission[record.MissionID] = record
	}

	view := ProgressView{Participant: participant, Campaign: snapshot.Campaign}
	for _, missionID := range snapshot.MissionIDs() {
		progress := MissionProgress{Mission: snapshot.Missions[missionID], Status: domain.StatusLocked}
		if record, ok := byMission[missionID]; ok {
			progress.Status = record.Status
			progress.Record = &record
			if record.Status == domain.StatusCompleted {
				view.CompletedCount++
			}
		} else if snapshot.BootstrapStatus(missionID) == domain.StatusAvailable {
			progress.Status = domain.StatusAvailable
		}
		view.Missions = append(view.Missions, progress)
	}

	if candidate, ok := snapshot.Ladder.At(participant.RankLevel + 1); ok {
		view.NextRank = &candidate
		gaps := domain.EvaluateRank(candidate, participant.Experience, view.CompletedCount, participant.Competencies)
		for _, gap := range gaps {
			view.UnmetRequirements = append(view.UnmetRequirements, gap.String())
		}
	}
	return view, nil
}

// ValidateCampaign runs the structural health checks on a campaign's graph.
func (s *Service) ValidateCampaign(ctx context.Context, campaignID string) (graph.Report, error) {
	ctx, span := s.tracer.Start(ctx, "progression.ValidateCampaign")
	defer span.End()

	if err := s.ready(); err != nil {
		return graph.Report{}, err
	}
	if err := requireIDs([2]string{"campaign", campaignID}); err != nil {
		return graph.Report{}, err
	}

	// Validation reads the live graph, never the memoized snapshot, so
	// authors see their latest edits.
	snapshot, err := loadSnapshot(ctx, s.store, campaignID)
	if err != nil {
		return graph.Report{}, err
	}
	return graph.Validate(snapshot), nil
}

// Publish activates a campaign after its graph passes validation. A report
// with critical or high issues blocks publishing.
func (s *Service) Publish(ctx context.Context, campaignID string) (graph.Report, error) {
	ctx, span := s.tracer.Start(ctx, "progression.Publish")
	defer span.End()

	report, err := s.ValidateCampaign(ctx, campaignID)
	if err != nil {
		return graph.Report{}, err
	}
	if !report.IsValid {
		return report, engineerrors.New(engineerrors.CodeCampaignUnpublishable, "campaign graph failed validation")
	}
	if err := s.store.SetCampaignActive(ctx, campaignID, true); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return report, engineerrors.New(engineerrors.CodeCampaignNotFound, "campaign does not exist")
		}
		return report, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "activate campaign", err)
	}
	s.InvalidateSnapshot(campaignID)
	return report, nil
}
