package progression

import (
	"context"
	stderrors "errors"
	"time"

	engineerrors "github.com/louisbranch/questline/internal/errors"
	"github.com/louisbranch/questline/internal/services/engine/domain"
	"github.com/louisbranch/questline/internal/services/engine/storage"
)

// Assign routes a participant into a campaign. When the campaign has active
// variants, the participant goes to the least-populated branch; otherwise
// they join the campaign directly. A repeat request returns the existing
// assignment and never re-rolls the branch.
func (s *Service) Assign(ctx context.Context, participantID, campaignID string) (domain.VariantAssignment, error) {
	ctx, span := s.tracer.Start(ctx, "progression.Assign")
	defer span.End()

	if err := s.ready(); err != nil {
		return domain.VariantAssignment{}, err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"campaign", campaignID}); err != nil {
		return domain.VariantAssignment{}, err
	}

	if existing, err := s.store.GetAssignment(ctx, participantID, campaignID); err == nil {
		return existing, nil
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return domain.VariantAssignment{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load assignment", err)
	}

	if _, err := s.getParticipant(ctx, s.store, participantID); err != nil {
		return domain.VariantAssignment{}, err
	}

	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return domain.VariantAssignment{}, engineerrors.New(engineerrors.CodeCampaignNotFound, "campaign does not exist")
		}
		return domain.VariantAssignment{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load campaign", err)
	}
	if !campaign.Active {
		return domain.VariantAssignment{}, engineerrors.New(engineerrors.CodeCampaignInactive, "campaign is not active")
	}

	targetID, err := s.pickBranch(ctx, campaign)
	if err != nil {
		return domain.VariantAssignment{}, err
	}

	snapshot, err := s.snapshot(ctx, targetID)
	if err != nil {
		return domain.VariantAssignment{}, err
	}

	assignment := domain.VariantAssignment{
		ParticipantID:  participantID,
		RootCampaignID: campaignID,
		CampaignID:     targetID,
		AssignedAt:     s.now(),
	}
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.PutAssignment(ctx, assignment); err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "save assignment", err)
		}
		return bootstrapRecords(ctx, tx, snapshot, participantID, s.now())
	})
	if err != nil {
		return domain.VariantAssignment{}, err
	}
	return assignment, nil
}

// pickBranch chooses the least-populated branch among the campaign and its
// active variants. Ties go to the campaign first, then variant list order.
func (s *Service) pickBranch(ctx context.Context, campaign domain.Campaign) (string, error) {
	variants, err := s.store.ListActiveVariants(ctx, campaign.ID)
	if err != nil {
		return "", engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load variants", err)
	}
	if len(variants) == 0 {
		return campaign.ID, nil
	}

	branchIDs := make([]string, 0, len(variants)+1)
	branchIDs = append(branchIDs, campaign.ID)
	for _, variant := range variants {
		branchIDs = append(branchIDs, variant.ID)
	}

	bestID := ""
	bestCount := -1
	for _, branchID := range branchIDs {
		count, err := s.store.CountAssignments(ctx, branchID)
		if err != nil {
			return "", engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "count assignments", err)
		}
		if bestCount < 0 || count < bestCount {
			bestID = branchID
			bestCount = count
		}
	}
	return bestID, nil
}

// bootstrapRecords creates one record per mission: AVAILABLE for entry
// points, LOCKED behind dependencies.
func bootstrapRecords(ctx context.Context, tx storage.Store, snapshot domain.Snapshot, participantID string, now time.Time) error {
	for _, missionID := range snapshot.MissionIDs() {
		record := domain.ProgressionRecord{
			ParticipantID: participantID,
			MissionID:     missionID,
			CampaignID:    snapshot.Campaign.ID,
			Status:        snapshot.BootstrapStatus(missionID),
			UpdatedAt:     now,
		}
		if err := tx.PutRecord(ctx, record); err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "bootstrap record", err)
		}
	}
	return nil
}
