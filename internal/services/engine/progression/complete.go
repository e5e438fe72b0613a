package progression

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	engineerrors "github.com/louisbranch/questline/internal/errors"
	"github.com/louisbranch/questline/internal/services/engine/domain"
	"github.com/louisbranch/questline/internal/services/engine/storage"
)

// completion is the outcome of one completed mission.
type completion struct {
	Unlocked      []string
	Promotion     PromotionResult
	notifications []domain.Notification
}

// completeMission runs the full completion sequence against a transaction:
// status transition, reward grant, unlock propagation, then rank evaluation.
// The conditional transition makes the sequence safe under concurrent calls;
// the losing caller gets a conflict and no reward is applied twice.
func (s *Service) completeMission(ctx context.Context, tx storage.Store, snapshot domain.Snapshot, participantID string, mission domain.Mission, from domain.Status, submitted *string) (completion, error) {
	now := s.now()
	moved, err := tx.TransitionRecord(ctx, participantID, mission.ID, from, domain.StatusCompleted, storage.RecordMutation{
		CompletedAt: &now,
		Submission:  submitted,
		UpdatedAt:   now,
	})
	if err != nil {
		return completion{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "complete mission", err)
	}
	if !moved {
		return completion{}, s.transitionConflict(ctx, tx, participantID, mission.ID, from)
	}

	if err := applyRewards(ctx, tx, participantID, mission, now); err != nil {
		return completion{}, err
	}

	result := completion{}
	result.notifications = append(result.notifications, domain.Notification{
		ParticipantID: participantID,
		Kind:          domain.NotificationMissionCompleted,
		Payload:       map[string]string{"mission_id": mission.ID},
	})

	unlocked, unlockNotifications, err := s.propagateUnlocks(ctx, tx, snapshot, participantID, mission.ID, now)
	if err != nil {
		return completion{}, err
	}
	result.Unlocked = unlocked
	result.notifications = append(result.notifications, unlockNotifications...)

	promotion, rankNotifications, err := s.evaluateRank(ctx, tx, snapshot, participantID)
	if err != nil {
		return completion{}, err
	}
	result.Promotion = promotion
	result.notifications = append(result.notifications, rankNotifications...)

	return result, nil
}

// transitionConflict turns a lost conditional update into the precise
// conflict the caller should see.
func (s *Service) transitionConflict(ctx context.Context, tx storage.Store, participantID, missionID string, from domain.Status) error {
	record, err := tx.GetRecord(ctx, participantID, missionID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return engineerrors.New(engineerrors.CodeMissionNotFound, "no progression record for this mission")
		}
		return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load record", err)
	}
	switch record.Status {
	case domain.StatusCompleted:
		return engineerrors.New(engineerrors.CodeMissionAlreadyCompleted, "mission is already completed")
	case domain.StatusLocked:
		return engineerrors.New(engineerrors.CodeMissionLocked, "mission is locked behind unmet dependencies")
	case domain.StatusPendingReview:
		if from != domain.StatusPendingReview {
			return engineerrors.New(engineerrors.CodeMissionNotAvailable, "mission is awaiting review")
		}
	}
	if from == domain.StatusPendingReview {
		return engineerrors.New(engineerrors.CodeMissionNotPendingReview, "mission is not pending review")
	}
	return engineerrors.New(engineerrors.CodeMissionNotAvailable, "mission is not available")
}

// applyRewards disburses a mission's rewards exactly once. The grant row is
// the arbiter; a pre-existing grant for a record we just transitioned means
// the ledger is out of step with the state machine, which must surface.
func applyRewards(ctx context.Context, tx storage.Store, participantID string, mission domain.Mission, now time.Time) error {
	granted, err := tx.InsertRewardGrant(ctx, participantID, mission.ID, now)
	if err != nil {
		return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "record reward grant", err)
	}
	if !granted {
		return engineerrors.WithMetadata(engineerrors.CodeRewardAlreadyGranted,
			"reward was already granted for this mission",
			map[string]string{"mission_id": mission.ID})
	}
	if mission.ExperienceReward != 0 || mission.CurrencyReward != 0 {
		if err := tx.IncrementParticipantTotals(ctx, participantID, mission.ExperienceReward, mission.CurrencyReward); err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "apply reward totals", err)
		}
	}
	for _, grant := range mission.Competencies {
		if err := tx.AddCompetencyPoints(ctx, participantID, grant.CompetencyID, grant.Points); err != nil {
			return engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "apply competency points", err)
		}
	}
	return nil
}

// propagateUnlocks promotes each dependent target to AVAILABLE once all of
// its required sources are COMPLETED. Unlocking is a one-way ratchet and
// dangling edges are logged and skipped, never aborting sibling targets.
func (s *Service) propagateUnlocks(ctx context.Context, tx storage.Store, snapshot domain.Snapshot, participantID, sourceMissionID string, now time.Time) ([]string, []domain.Notification, error) {
	var unlocked []string
	var notifications []domain.Notification
	for _, targetID := range snapshot.DependentTargets(sourceMissionID) {
		if _, ok := snapshot.Missions[targetID]; !ok {
			s.logf("integrity warning: dependency edge %s -> %s targets a missing mission", sourceMissionID, targetID)
			continue
		}
		satisfied, err := s.dependenciesMet(ctx, tx, snapshot, participantID, targetID)
		if err != nil {
			return nil, nil, err
		}
		if !satisfied {
			continue
		}
		didUnlock, err := tx.UnlockRecord(ctx, participantID, targetID, snapshot.Campaign.ID, now)
		if err != nil {
			return nil, nil, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "unlock record", err)
		}
		if didUnlock {
			unlocked = append(unlocked, targetID)
			notifications = append(notifications, domain.Notification{
				ParticipantID: participantID,
				Kind:          domain.NotificationNewMissionAvailable,
				Payload:       map[string]string{"mission_id": targetID},
			})
		}
	}
	return unlocked, notifications, nil
}

// dependenciesMet reports whether every required source of the target is
// COMPLETED for the participant. Sources missing from the snapshot are
// dangling edges: logged and not counted against the target.
func (s *Service) dependenciesMet(ctx context.Context, tx storage.Store, snapshot domain.Snapshot, participantID, targetMissionID string) (bool, error) {
	for _, sourceID := range snapshot.RequiredSources(targetMissionID) {
		if _, ok := snapshot.Missions[sourceID]; !ok {
			s.logf("integrity warning: dependency edge %s -> %s references a missing source", sourceID, targetMissionID)
			continue
		}
		record, err := tx.GetRecord(ctx, participantID, sourceID)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return false, nil
			}
			return false, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load source record", err)
		}
		if record.Status != domain.StatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// PromotionResult reports the outcome of one rank evaluation.
type PromotionResult struct {
	Promoted          bool
	NewRank           int
	UnmetRequirements []string
}

// evaluateRank advances the participant's rank while each next tier's gate
// passes, cascading within one call. Promotion rewards flow through the same
// increment mechanism as mission rewards, so they count toward later tiers.
func (s *Service) evaluateRank(ctx context.Context, tx storage.Store, snapshot domain.Snapshot, participantID string) (PromotionResult, []domain.Notification, error) {
	result := PromotionResult{}
	var notifications []domain.Notification
	if snapshot.Ladder.Empty() {
		return result, nil, nil
	}

	for {
		participant, err := s.getParticipant(ctx, tx, participantID)
		if err != nil {
			return PromotionResult{}, nil, err
		}
		candidate, ok := snapshot.Ladder.At(participant.RankLevel + 1)
		if !ok {
			break
		}
		completed, err := tx.CountCompletedMissions(ctx, participantID, snapshot.Campaign.ID)
		if err != nil {
			return PromotionResult{}, nil, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "count completed missions", err)
		}

		gaps := domain.EvaluateRank(candidate, participant.Experience, completed, participant.Competencies)
		if len(gaps) > 0 {
			for _, gap := range gaps {
				result.UnmetRequirements = append(result.UnmetRequirements, gap.String())
			}
			if domain.OnlyCompetencyGapsRemain(gaps) {
				nudge, err := s.competencyNudge(ctx, participantID, candidate, gaps)
				if err != nil {
					return PromotionResult{}, nil, err
				}
				if nudge != nil {
					notifications = append(notifications, *nudge)
				}
			}
			break
		}

		promoted, err := tx.PromoteParticipantRank(ctx, participantID, participant.RankLevel, candidate.Level)
		if err != nil {
			return PromotionResult{}, nil, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "promote participant", err)
		}
		if !promoted {
			// Another evaluation won the compare-and-set; the level only
			// ever moves up, so stop here.
			break
		}
		if candidate.RewardExperience != 0 || candidate.RewardCurrency != 0 {
			if err := tx.IncrementParticipantTotals(ctx, participantID, candidate.RewardExperience, candidate.RewardCurrency); err != nil {
				return PromotionResult{}, nil, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "apply promotion reward", err)
			}
		}
		result.Promoted = true
		result.NewRank = candidate.Level
		result.UnmetRequirements = nil
		notifications = append(notifications, domain.Notification{
			ParticipantID: participantID,
			Kind:          domain.NotificationRankUp,
			Payload: map[string]string{
				"level": strconv.Itoa(candidate.Level),
				"name":  candidate.Name,
			},
		})
	}
	return result, notifications, nil
}

// competencyNudge builds an "almost there" notification naming the missing
// competencies, suppressed while an unread one is already pending.
func (s *Service) competencyNudge(ctx context.Context, participantID string, candidate domain.Rank, gaps []domain.RankGap) (*domain.Notification, error) {
	if s.notifier == nil {
		return nil, nil
	}
	unread, err := s.notifier.HasUnread(ctx, participantID, domain.NotificationRankProgress)
	if err != nil {
		return nil, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "check unread notifications", err)
	}
	if unread {
		return nil, nil
	}
	payload := map[string]string{"level": strconv.Itoa(candidate.Level)}
	for _, gap := range gaps {
		payload["gap:"+gap.Requirement] = gap.String()
	}
	return &domain.Notification{
		ParticipantID: participantID,
		Kind:          domain.NotificationRankProgress,
		Payload:       payload,
	}, nil
}

// dispatch forwards the collected notifications after the owning transaction
// committed. Delivery is fire-and-forget.
func (s *Service) dispatch(ctx context.Context, notifications []domain.Notification) {
	if s.notifier == nil || len(notifications) == 0 {
		return
	}
	s.notifier.Dispatch(ctx, notifications)
}
