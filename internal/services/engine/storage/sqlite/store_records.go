package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/questline/internal/services/engine/domain"
	"github.com/louisbranch/questline/internal/services/engine/storage"
)

// PutRecord inserts or replaces one progression record.
func (s *Store) PutRecord(ctx context.Context, record domain.ProgressionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(record.ParticipantID) == "" || strings.TrimSpace(record.MissionID) == "" {
		return fmt.Errorf("record participant and mission ids are required")
	}
	if !record.Status.Valid() {
		return fmt.Errorf("record status %q is invalid", record.Status)
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO progression_records (participant_id, mission_id, campaign_id, status, started_at, completed_at, submission, reviewer_comment, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(participant_id, mission_id) DO UPDATE SET
    campaign_id = excluded.campaign_id,
    status = excluded.status,
    started_at = excluded.started_at,
    completed_at = excluded.completed_at,
    submission = excluded.submission,
    reviewer_comment = excluded.reviewer_comment,
    updated_at = excluded.updated_at
`, record.ParticipantID, record.MissionID, record.CampaignID, string(record.Status),
		toMillisPtr(record.StartedAt), toMillisPtr(record.CompletedAt),
		record.Submission, record.ReviewerComment, toMillis(record.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// GetRecord loads one (participant, mission) progression record.
func (s *Store) GetRecord(ctx context.Context, participantID, missionID string) (domain.ProgressionRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProgressionRecord{}, err
	}
	if err := s.ready(); err != nil {
		return domain.ProgressionRecord{}, err
	}

	row := s.q.QueryRowContext(ctx, `
SELECT participant_id, mission_id, campaign_id, status, started_at, completed_at, submission, reviewer_comment, updated_at
FROM progression_records
WHERE participant_id = ? AND mission_id = ?
`, participantID, missionID)
	record, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProgressionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.ProgressionRecord{}, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// ListRecords returns a participant's records for one campaign.
func (s *Store) ListRecords(ctx context.Context, participantID, campaignID string) ([]domain.ProgressionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
SELECT participant_id, mission_id, campaign_id, status, started_at, completed_at, submission, reviewer_comment, updated_at
FROM progression_records
WHERE participant_id = ? AND campaign_id = ?
ORDER BY mission_id
`, participantID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []domain.ProgressionRecord
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanRecord(scan func(dest ...any) error) (domain.ProgressionRecord, error) {
	var record domain.ProgressionRecord
	var status string
	var startedAt, completedAt sql.NullInt64
	var updatedAt int64
	err := scan(&record.ParticipantID, &record.MissionID, &record.CampaignID, &status,
		&startedAt, &completedAt, &record.Submission, &record.ReviewerComment, &updatedAt)
	if err != nil {
		return domain.ProgressionRecord{}, err
	}
	record.Status = domain.Status(status)
	record.StartedAt = fromMillisPtr(startedAt)
	record.CompletedAt = fromMillisPtr(completedAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// TransitionRecord moves a record from one status to another in a single
// conditional update. Returns false when the record was not in the expected
// status, which collapses duplicate concurrent transitions to one winner.
func (s *Store) TransitionRecord(ctx context.Context, participantID, missionID string, from, to domain.Status, mutation storage.RecordMutation) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	if !domain.CanTransition(from, to) {
		return false, fmt.Errorf("transition %s to %s is not permitted", from, to)
	}

	query := "UPDATE progression_records SET status = ?, updated_at = ?"
	args := []any{string(to), toMillis(mutation.UpdatedAt)}
	if mutation.StartedAt != nil {
		query += ", started_at = ?"
		args = append(args, toMillis(*mutation.StartedAt))
	}
	if mutation.CompletedAt != nil {
		query += ", completed_at = ?"
		args = append(args, toMillis(*mutation.CompletedAt))
	}
	if mutation.Submission != nil {
		query += ", submission = ?"
		args = append(args, *mutation.Submission)
	}
	if mutation.ReviewerComment != nil {
		query += ", reviewer_comment = ?"
		args = append(args, *mutation.ReviewerComment)
	}
	query += " WHERE participant_id = ? AND mission_id = ? AND status = ?"
	args = append(args, participantID, missionID, string(from))

	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition record rows: %w", err)
	}
	return affected > 0, nil
}

// UnlockRecord moves a LOCKED record to AVAILABLE, creating the record when
// it does not exist yet. Records already past LOCKED are left untouched so
// unlocking never moves a participant backwards.
func (s *Store) UnlockRecord(ctx context.Context, participantID, missionID, campaignID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}

	result, err := s.q.ExecContext(ctx, `
UPDATE progression_records SET status = ?, updated_at = ?
WHERE participant_id = ? AND mission_id = ? AND status = ?
`, string(domain.StatusAvailable), toMillis(now), participantID, missionID, string(domain.StatusLocked))
	if err != nil {
		return false, fmt.Errorf("unlock record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unlock record rows: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	insert, err := s.q.ExecContext(ctx, `
INSERT INTO progression_records (participant_id, mission_id, campaign_id, status, submission, reviewer_comment, updated_at)
VALUES (?, ?, ?, ?, '', '', ?)
ON CONFLICT DO NOTHING
`, participantID, missionID, campaignID, string(domain.StatusAvailable), toMillis(now))
	if err != nil {
		return false, fmt.Errorf("insert unlocked record: %w", err)
	}
	inserted, err := insert.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert unlocked record rows: %w", err)
	}
	return inserted > 0, nil
}

// DeleteRecords removes every record a participant holds in one campaign.
func (s *Store) DeleteRecords(ctx context.Context, participantID, campaignID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
DELETE FROM progression_records WHERE participant_id = ? AND campaign_id = ?
`, participantID, campaignID)
	if err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

// InsertRewardGrant records that a mission's rewards were granted. Returns
// false when a grant already exists, making reward disbursement exactly-once.
func (s *Store) InsertRewardGrant(ctx context.Context, participantID, missionID string, grantedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}

	result, err := s.q.ExecContext(ctx, `
INSERT INTO reward_grants (participant_id, mission_id, granted_at)
VALUES (?, ?, ?)
ON CONFLICT DO NOTHING
`, participantID, missionID, toMillis(grantedAt))
	if err != nil {
		return false, fmt.Errorf("insert reward grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert reward grant rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteRewardGrants removes a participant's grant rows for one campaign's missions.
func (s *Store) DeleteRewardGrants(ctx context.Context, participantID, campaignID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
DELETE FROM reward_grants
WHERE participant_id = ?
  AND mission_id IN (SELECT id FROM missions WHERE campaign_id = ?)
`, participantID, campaignID)
	if err != nil {
		return fmt.Errorf("delete reward grants: %w", err)
	}
	return nil
}

// PutAssignment inserts or replaces one variant assignment.
func (s *Store) PutAssignment(ctx context.Context, assignment domain.VariantAssignment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO variant_assignments (participant_id, root_campaign_id, campaign_id, assigned_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(participant_id, root_campaign_id) DO UPDATE SET
    campaign_id = excluded.campaign_id,
    assigned_at = excluded.assigned_at
`, assignment.ParticipantID, assignment.RootCampaignID, assignment.CampaignID, toMillis(assignment.AssignedAt))
	if err != nil {
		return fmt.Errorf("put assignment: %w", err)
	}
	return nil
}

// GetAssignment loads the variant a participant was routed to for one root campaign.
func (s *Store) GetAssignment(ctx context.Context, participantID, rootCampaignID string) (domain.VariantAssignment, error) {
	if err := ctx.Err(); err != nil {
		return domain.VariantAssignment{}, err
	}
	if err := s.ready(); err != nil {
		return domain.VariantAssignment{}, err
	}

	row := s.q.QueryRowContext(ctx, `
SELECT participant_id, root_campaign_id, campaign_id, assigned_at
FROM variant_assignments
WHERE participant_id = ? AND root_campaign_id = ?
`, participantID, rootCampaignID)

	var assignment domain.VariantAssignment
	var assignedAt int64
	err := row.Scan(&assignment.ParticipantID, &assignment.RootCampaignID, &assignment.CampaignID, &assignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VariantAssignment{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.VariantAssignment{}, fmt.Errorf("get assignment: %w", err)
	}
	assignment.AssignedAt = fromMillis(assignedAt)
	return assignment, nil
}

// CountAssignments counts the participants currently routed to one variant.
func (s *Store) CountAssignments(ctx context.Context, campaignID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}

	row := s.q.QueryRowContext(ctx, `
SELECT COUNT(*) FROM variant_assignments WHERE campaign_id = ?
`, campaignID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count assignments: %w", err)
	}
	return count, nil
}

// DeleteAssignment removes a participant's routing for one root campaign.
func (s *Store) DeleteAssignment(ctx context.Context, participantID, rootCampaignID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
DELETE FROM variant_assignments WHERE participant_id = ? AND root_campaign_id = ?
`, participantID, rootCampaignID)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}
