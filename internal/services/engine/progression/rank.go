package progression

import (
	"context"

	"github.com/louisbranch/questline/internal/services/engine/domain"
	"github.com/louisbranch/questline/internal/services/engine/storage"
)

// EvaluateRank runs the promotion gate for a participant against a campaign's
// ladder, cascading through consecutive tiers until one fails. Promotions are
// one level at a time and the rank level never moves down.
func (s *Service) EvaluateRank(ctx context.Context, participantID, campaignID string) (PromotionResult, error) {
	ctx, span := s.tracer.Start(ctx, "progression.EvaluateRank")
	defer span.End()

	if err := s.ready(); err != nil {
		return PromotionResult{}, err
	}
	if err := requireIDs([2]string{"participant", participantID}, [2]string{"campaign", campaignID}); err != nil {
		return PromotionResult{}, err
	}

	snapshot, err := s.snapshot(ctx, campaignID)
	if err != nil {
		return PromotionResult{}, err
	}

	var result PromotionResult
	var notifications []domain.Notification
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		var evalErr error
		result, notifications, evalErr = s.evaluateRank(ctx, tx, snapshot, participantID)
		return evalErr
	})
	if err != nil {
		return PromotionResult{}, err
	}
	s.dispatch(ctx, notifications)
	return result, nil
}
