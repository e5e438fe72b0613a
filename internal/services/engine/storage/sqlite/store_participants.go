package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/questline/internal/services/engine/domain"
	"github.com/louisbranch/questline/internal/services/engine/storage"
)

// PutParticipant inserts or replaces one participant row. Aggregate columns
// are written as-is; callers mutating totals should use the increment methods
// instead to avoid lost updates.
func (s *Store) PutParticipant(ctx context.Context, participant domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(participant.ID) == "" {
		return fmt.Errorf("participant id is required")
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO participants (id, display_name, experience, currency, rank_level, sandbox, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    display_name = excluded.display_name,
    experience = excluded.experience,
    currency = excluded.currency,
    rank_level = excluded.rank_level,
    sandbox = excluded.sandbox,
    updated_at = excluded.updated_at
`, participant.ID, participant.DisplayName, participant.Experience, participant.Currency,
		participant.RankLevel, boolToInt(participant.Sandbox),
		toMillis(participant.CreatedAt), toMillis(participant.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put participant: %w", err)
	}

	for competencyID, points := range participant.Competencies {
		if _, err := s.q.ExecContext(ctx, `
INSERT INTO participant_competencies (participant_id, competency_id, points)
VALUES (?, ?, ?)
ON CONFLICT(participant_id, competency_id) DO UPDATE SET points = excluded.points
`, participant.ID, competencyID, points); err != nil {
			return fmt.Errorf("put participant competency: %w", err)
		}
	}
	return nil
}

// GetParticipant loads one participant with accumulated competency points.
func (s *Store) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Participant{}, err
	}
	if err := s.ready(); err != nil {
		return domain.Participant{}, err
	}

	row := s.q.QueryRowContext(ctx, `
SELECT id, display_name, experience, currency, rank_level, sandbox, created_at, updated_at
FROM participants
WHERE id = ?
`, participantID)

	var participant domain.Participant
	var sandbox int
	var createdAt, updatedAt int64
	err := row.Scan(&participant.ID, &participant.DisplayName, &participant.Experience,
		&participant.Currency, &participant.RankLevel, &sandbox, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	participant.Sandbox = sandbox != 0
	participant.CreatedAt = fromMillis(createdAt)
	participant.UpdatedAt = fromMillis(updatedAt)

	rows, err := s.q.QueryContext(ctx, `
SELECT competency_id, points FROM participant_competencies WHERE participant_id = ?
`, participantID)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("list participant competencies: %w", err)
	}
	defer rows.Close()

	participant.Competencies = make(map[string]int)
	for rows.Next() {
		var competencyID string
		var points int
		if err := rows.Scan(&competencyID, &points); err != nil {
			return domain.Participant{}, fmt.Errorf("scan participant competency: %w", err)
		}
		participant.Competencies[competencyID] = points
	}
	return participant, rows.Err()
}

// IncrementParticipantTotals adds experience and currency to a participant's
// aggregates in place so concurrent grants never lose updates.
func (s *Store) IncrementParticipantTotals(ctx context.Context, participantID string, experience, currency int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
UPDATE participants SET experience = experience + ?, currency = currency + ? WHERE id = ?
`, experience, currency, participantID)
	if err != nil {
		return fmt.Errorf("increment participant totals: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment participant totals rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddCompetencyPoints upserts an increment into one competency counter.
func (s *Store) AddCompetencyPoints(ctx context.Context, participantID, competencyID string, points int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO participant_competencies (participant_id, competency_id, points)
VALUES (?, ?, ?)
ON CONFLICT(participant_id, competency_id) DO UPDATE SET points = points + excluded.points
`, participantID, competencyID, points)
	if err != nil {
		return fmt.Errorf("add competency points: %w", err)
	}
	return nil
}

// PromoteParticipantRank raises the rank level only when the stored level
// still matches fromLevel. Returns false when another promotion won, keeping
// the level monotonic under concurrent evaluations.
func (s *Store) PromoteParticipantRank(ctx context.Context, participantID string, fromLevel, toLevel int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	if toLevel <= fromLevel {
		return false, fmt.Errorf("promotion must raise the rank level")
	}

	result, err := s.q.ExecContext(ctx, `
UPDATE participants SET rank_level = ? WHERE id = ? AND rank_level = ?
`, toLevel, participantID, fromLevel)
	if err != nil {
		return false, fmt.Errorf("promote participant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("promote participant rows: %w", err)
	}
	return affected > 0, nil
}

// ResetParticipantTotals zeroes aggregates, clears competency counters, and
// returns the participant to the initial rank level.
func (s *Store) ResetParticipantTotals(ctx context.Context, participantID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
UPDATE participants SET experience = 0, currency = 0, rank_level = ? WHERE id = ?
`, domain.InitialRankLevel, participantID)
	if err != nil {
		return fmt.Errorf("reset participant totals: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset participant totals rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if _, err := s.q.ExecContext(ctx, `
DELETE FROM participant_competencies WHERE participant_id = ?
`, participantID); err != nil {
		return fmt.Errorf("reset participant competencies: %w", err)
	}
	return nil
}

// CountCompletedMissions counts a participant's completed records in one campaign.
func (s *Store) CountCompletedMissions(ctx context.Context, participantID, campaignID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}

	row := s.q.QueryRowContext(ctx, `
SELECT COUNT(*) FROM progression_records
WHERE participant_id = ? AND campaign_id = ? AND status = ?
`, participantID, campaignID, string(domain.StatusCompleted))
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count completed missions: %w", err)
	}
	return count, nil
}
