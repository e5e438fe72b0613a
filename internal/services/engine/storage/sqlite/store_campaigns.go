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

// PutCampaign inserts or replaces one campaign row.
func (s *Store) PutCampaign(ctx context.Context, campaign domain.Campaign) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(campaign.ID) == "" {
		return fmt.Errorf("campaign id is required")
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO campaigns (id, name, active, parent_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    active = excluded.active,
    parent_id = excluded.parent_id,
    updated_at = excluded.updated_at
`, campaign.ID, campaign.Name, boolToInt(campaign.Active), campaign.ParentID,
		toMillis(campaign.CreatedAt), toMillis(campaign.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put campaign: %w", err)
	}
	return nil
}

// GetCampaign loads one campaign by id.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return domain.Campaign{}, err
	}
	if err := s.ready(); err != nil {
		return domain.Campaign{}, err
	}

	row := s.q.QueryRowContext(ctx, `
SELECT id, name, active, parent_id, created_at, updated_at
FROM campaigns
WHERE id = ?
`, campaignID)

	var campaign domain.Campaign
	var active int
	var createdAt, updatedAt int64
	err := row.Scan(&campaign.ID, &campaign.Name, &active, &campaign.ParentID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Campaign{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("get campaign: %w", err)
	}
	campaign.Active = active != 0
	campaign.CreatedAt = fromMillis(createdAt)
	campaign.UpdatedAt = fromMillis(updatedAt)
	return campaign, nil
}

// SetCampaignActive flips the campaign's active flag.
func (s *Store) SetCampaignActive(ctx context.Context, campaignID string, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
UPDATE campaigns SET active = ? WHERE id = ?
`, boolToInt(active), campaignID)
	if err != nil {
		return fmt.Errorf("set campaign active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set campaign active rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListActiveVariants returns the active variants of a parent campaign.
func (s *Store) ListActiveVariants(ctx context.Context, parentID string) ([]domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
SELECT id, name, active, parent_id, created_at, updated_at
FROM campaigns
WHERE parent_id = ? AND active = 1
ORDER BY id
`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Campaign
	for rows.Next() {
		var campaign domain.Campaign
		var active int
		var createdAt, updatedAt int64
		if err := rows.Scan(&campaign.ID, &campaign.Name, &active, &campaign.ParentID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		campaign.Active = active != 0
		campaign.CreatedAt = fromMillis(createdAt)
		campaign.UpdatedAt = fromMillis(updatedAt)
		variants = append(variants, campaign)
	}
	return variants, rows.Err()
}

// PutMission inserts or replaces one mission row and its competency grants.
func (s *Store) PutMission(ctx context.Context, mission domain.Mission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(mission.ID) == "" {
		return fmt.Errorf("mission id is required")
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO missions (id, campaign_id, name, description, mission_type, experience_reward, currency_reward, confirmation_type, min_rank)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    description = excluded.description,
    mission_type = excluded.mission_type,
    experience_reward = excluded.experience_reward,
    currency_reward = excluded.currency_reward,
    confirmation_type = excluded.confirmation_type,
    min_rank = excluded.min_rank
`, mission.ID, mission.CampaignID, mission.Name, mission.Description, mission.Type,
		mission.ExperienceReward, mission.CurrencyReward, string(mission.ConfirmationType), mission.MinRank)
	if err != nil {
		return fmt.Errorf("put mission: %w", err)
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM mission_competencies WHERE mission_id = ?`, mission.ID); err != nil {
		return fmt.Errorf("clear mission competencies: %w", err)
	}
	for _, grant := range mission.Competencies {
		if _, err := s.q.ExecContext(ctx, `
INSERT INTO mission_competencies (mission_id, competency_id, points) VALUES (?, ?, ?)
`, mission.ID, grant.CompetencyID, grant.Points); err != nil {
			return fmt.Errorf("put mission competency: %w", err)
		}
	}
	return nil
}

// GetMission loads one mission with its competency grants.
func (s *Store) GetMission(ctx context.Context, missionID string) (domain.Mission, error) {
	if err := ctx.Err(); err != nil {
		return domain.Mission{}, err
	}
	if err := s.ready(); err != nil {
		return domain.Mission{}, err
	}

	row := s.q.QueryRowContext(ctx, `
SELECT id, campaign_id, name, description, mission_type, experience_reward, currency_reward, confirmation_type, min_rank
FROM missions
WHERE id = ?
`, missionID)
	mission, err := scanMission(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Mission{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Mission{}, fmt.Errorf("get mission: %w", err)
	}
	if err := s.attachCompetencies(ctx, &mission); err != nil {
		return domain.Mission{}, err
	}
	return mission, nil
}

// ListMissions returns every mission of one campaign with competency grants.
func (s *Store) ListMissions(ctx context.Context, campaignID string) ([]domain.Mission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
SELECT id, campaign_id, name, description, mission_type, experience_reward, currency_reward, confirmation_type, min_rank
FROM missions
WHERE campaign_id = ?
ORDER BY id
`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var missions []domain.Mission
	for rows.Next() {
		mission, err := scanMission(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		missions = append(missions, mission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range missions {
		if err := s.attachCompetencies(ctx, &missions[i]); err != nil {
			return nil, err
		}
	}
	return missions, nil
}

func scanMission(scan func(dest ...any) error) (domain.Mission, error) {
	var mission domain.Mission
	var confirmation string
	err := scan(&mission.ID, &mission.CampaignID, &mission.Name, &mission.Description, &mission.Type,
		&mission.ExperienceReward, &mission.CurrencyReward, &confirmation, &mission.MinRank)
	if err != nil {
		return domain.Mission{}, err
	}
	mission.ConfirmationType = domain.ConfirmationType(confirmation)
	return mission, nil
}

func (s *Store) attachCompetencies(ctx context.Context, mission *domain.Mission) error {
	rows, err := s.q.QueryContext(ctx, `
SELECT competency_id, points FROM mission_competencies WHERE mission_id = ? ORDER BY competency_id
`, mission.ID)
	if err != nil {
		return fmt.Errorf("list mission competencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var grant domain.CompetencyGrant
		if err := rows.Scan(&grant.CompetencyID, &grant.Points); err != nil {
			return fmt.Errorf("scan mission competency: %w", err)
		}
		mission.Competencies = append(mission.Competencies, grant)
	}
	return rows.Err()
}

// PutDependency inserts one dependency edge, ignoring duplicates.
func (s *Store) PutDependency(ctx context.Context, dep domain.Dependency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO mission_dependencies (source_mission_id, target_mission_id)
VALUES (?, ?)
ON CONFLICT DO NOTHING
`, dep.SourceMissionID, dep.TargetMissionID)
	if err != nil {
		return fmt.Errorf("put dependency: %w", err)
	}
	return nil
}

// ListDependencies returns the dependency edges whose source or target
// belongs to the campaign. Dangling edges are returned as stored; the
// resolver decides how to treat them.
func (s *Store) ListDependencies(ctx context.Context, campaignID string) ([]domain.Dependency, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
SELECT DISTINCT d.source_mission_id, d.target_mission_id
FROM mission_dependencies d
LEFT JOIN missions src ON src.id = d.source_mission_id
LEFT JOIN missions dst ON dst.id = d.target_mission_id
WHERE src.campaign_id = ? OR dst.campaign_id = ?
ORDER BY d.source_mission_id, d.target_mission_id
`, campaignID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var deps []domain.Dependency
	for rows.Next() {
		var dep domain.Dependency
		if err := rows.Scan(&dep.SourceMissionID, &dep.TargetMissionID); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

// PutCompetency inserts or replaces one competency.
func (s *Store) PutCompetency(ctx context.Context, competency domain.Competency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO competencies (id, name) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name
`, competency.ID, competency.Name)
	if err != nil {
		return fmt.Errorf("put competency: %w", err)
	}
	return nil
}

// ListCompetencies returns every known competency.
func (s *Store) ListCompetencies(ctx context.Context) ([]domain.Competency, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `SELECT id, name FROM competencies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list competencies: %w", err)
	}
	defer rows.Close()

	var competencies []domain.Competency
	for rows.Next() {
		var competency domain.Competency
		if err := rows.Scan(&competency.ID, &competency.Name); err != nil {
			return nil, fmt.Errorf("scan competency: %w", err)
		}
		competencies = append(competencies, competency)
	}
	return competencies, rows.Err()
}

// PutRank inserts or replaces one ladder tier and its competency thresholds.
func (s *Store) PutRank(ctx context.Context, rank domain.Rank) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO ranks (campaign_id, level, name, min_experience, min_missions, reward_experience, reward_currency)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(campaign_id, level) DO UPDATE SET
    name = excluded.name,
    min_experience = excluded.min_experience,
    min_missions = excluded.min_missions,
    reward_experience = excluded.reward_experience,
    reward_currency = excluded.reward_currency
`, rank.CampaignID, rank.Level, rank.Name, rank.MinExperience, rank.MinMissions,
		rank.RewardExperience, rank.RewardCurrency)
	if err != nil {
		return fmt.Errorf("put rank: %w", err)
	}

	if _, err := s.q.ExecContext(ctx, `
DELETE FROM rank_competencies WHERE campaign_id = ? AND level = ?
`, rank.CampaignID, rank.Level); err != nil {
		return fmt.Errorf("clear rank competencies: %w", err)
	}
	for competencyID, points := range rank.RequiredCompetencies {
		if _, err := s.q.ExecContext(ctx, `
INSERT INTO rank_competencies (campaign_id, level, competency_id, points) VALUES (?, ?, ?, ?)
`, rank.CampaignID, rank.Level, competencyID, points); err != nil {
			return fmt.Errorf("put rank competency: %w", err)
		}
	}
	return nil
}

// ListRanks returns one ladder's tiers sorted by level. An empty campaignID
// addresses the global ladder.
func (s *Store) ListRanks(ctx context.Context, campaignID string) ([]domain.Rank, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
SELECT campaign_id, level, name, min_experience, min_missions, reward_experience, reward_currency
FROM ranks
WHERE campaign_id = ?
ORDER BY level
`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list ranks: %w", err)
	}
	defer rows.Close()

	var ranks []domain.Rank
	for rows.Next() {
		var rank domain.Rank
		if err := rows.Scan(&rank.CampaignID, &rank.Level, &rank.Name, &rank.MinExperience,
			&rank.MinMissions, &rank.RewardExperience, &rank.RewardCurrency); err != nil {
			return nil, fmt.Errorf("scan rank: %w", err)
		}
		ranks = append(ranks, rank)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range ranks {
		required, err := s.rankCompetencies(ctx, ranks[i].CampaignID, ranks[i].Level)
		if err != nil {
			return nil, err
		}
		ranks[i].RequiredCompetencies = required
	}
	return ranks, nil
}

func (s *Store) rankCompetencies(ctx context.Context, campaignID string, level int) (map[string]int, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT competency_id, points FROM rank_competencies WHERE campaign_id = ? AND level = ?
`, campaignID, level)
	if err != nil {
		return nil, fmt.Errorf("list rank competencies: %w", err)
	}
	defer rows.Close()

	required := make(map[string]int)
	for rows.Next() {
		var competencyID string
		var points int
		if err := rows.Scan(&competencyID, &points); err != nil {
			return nil, fmt.Errorf("scan rank competency: %w", err)
		}
		required[competencyID] = points
	}
	return required, rows.Err()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
