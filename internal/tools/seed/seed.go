// Package seed builds a demo campaign fixture for local development. The
// fixture is an onboarding quest line with a variant branch, a promotion
// ladder, and a handful of participants routed through the variant balancer.
package seed

import (
	"context"
	"fmt"
	"io"

	"github.com/louisbranch/questline/internal/services/engine/checkin"
	"github.com/louisbranch/questline/internal/services/engine/domain"
	"github.com/louisbranch/questline/internal/services/engine/notify"
	"github.com/louisbranch/questline/internal/services/engine/progression"
	"github.com/louisbranch/questline/internal/services/engine/storage/sqlite"
	"github.com/louisbranch/questline/internal/services/engine/submission"
)

// Config holds seed tool configuration.
type Config struct {
	StoragePath  string
	Participants int
	Verbose      bool
}

// DefaultConfig returns the default seed configuration.
func DefaultConfig() Config {
	return Config{
		StoragePath:  "questline.db",
		Participants: 6,
	}
}

// Run writes the demo fixture into the configured sqlite database.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.Participants < 0 {
		cfg.Participants = 0
	}

	store, err := sqlite.Open(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	campaign, err := buildCampaign(ctx, store)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded campaign %q (%s)\n", campaign.Name, campaign.ID)

	dispatcher := notify.NewDispatcher(&notify.MemorySink{}, 4, nil)
	defer dispatcher.Wait()
	service := progression.New(store, dispatcher,
		submission.NewPayloadValidator(),
		checkin.NewHMACVerifier([]byte("seed-dev-secret"), 0),
	)

	for i := 0; i < cfg.Participants; i++ {
		participant, err := domain.CreateParticipant(domain.CreateParticipantInput{
			DisplayName: fmt.Sprintf("Demo Participant %d", i+1),
		}, nil, nil)
		if err != nil {
			return fmt.Errorf("create participant: %w", err)
		}
		if err := store.PutParticipant(ctx, participant); err != nil {
			return fmt.Errorf("store participant: %w", err)
		}
		assignment, err := service.Assign(ctx, participant.ID, campaign.ID)
		if err != nil {
			return fmt.Errorf("assign participant: %w", err)
		}
		if cfg.Verbose {
			fmt.Fprintf(out, "  %s -> branch %s\n", participant.DisplayName, assignment.CampaignID)
		}
	}
	fmt.Fprintf(out, "assigned %d participants\n", cfg.Participants)
	return nil
}

// buildCampaign creates the onboarding fixture: a published campaign with one
// variant, three competencies, a five-mission dependency chain, and a
// three-rank ladder.
func buildCampaign(ctx context.Context, store *sqlite.Store) (domain.Campaign, error) {
	campaign, err := domain.CreateCampaign(domain.CreateCampaignInput{
		Name:   "New Hire Onboarding",
		Active: true,
	}, nil, nil)
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	if err := store.PutCampaign(ctx, campaign); err != nil {
		return domain.Campaign{}, fmt.Errorf("store campaign: %w", err)
	}

	variant, err := domain.CreateCampaign(domain.CreateCampaignInput{
		Name:     "New Hire Onboarding (Self-Paced)",
		Active:   true,
		ParentID: campaign.ID,
	}, nil, nil)
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("create variant: %w", err)
	}
	if err := store.PutCampaign(ctx, variant); err != nil {
		return domain.Campaign{}, fmt.Errorf("store variant: %w", err)
	}

	competencies := map[string]string{
		"communication": "Communication",
		"tooling":       "Tooling",
		"culture":       "Culture",
	}
	for id, name := range competencies {
		if err := store.PutCompetency(ctx, domain.Competency{ID: id, Name: name}); err != nil {
			return domain.Campaign{}, fmt.Errorf("store competency: %w", err)
		}
	}

	type missionSpec struct {
		key          string
		name         string
		confirmation domain.ConfirmationType
		xp           int
		currency     int
		minRank      int
		grants       []domain.CompetencyGrant
		requires     []string
	}
	specs := []missionSpec{
		{key: "welcome", name: "Read the Welcome Pack", confirmation: domain.ConfirmationAuto, xp: 10, currency: 5,
			grants: []domain.CompetencyGrant{{CompetencyID: "culture", Points: 5}}},
		{key: "laptop", name: "Set Up Your Laptop", confirmation: domain.ConfirmationAuto, xp: 20, currency: 5,
			grants:   []domain.CompetencyGrant{{CompetencyID: "tooling", Points: 10}},
			requires: []string{"welcome"}},
		{key: "intro", name: "Post Your Introduction", confirmation: domain.ConfirmationManualReview, xp: 30, currency: 10,
			grants:   []domain.CompetencyGrant{{CompetencyID: "communication", Points: 15}},
			requires: []string{"welcome"}},
		{key: "tour", name: "Office Tour Check-In", confirmation: domain.ConfirmationQRScan, xp: 25, currency: 10,
			grants:   []domain.CompetencyGrant{{CompetencyID: "culture", Points: 10}},
			requires: []string{"laptop"}},
		{key: "buddy", name: "Meet Your Onboarding Buddy", confirmation: domain.ConfirmationManualReview, xp: 40, currency: 20, minRank: 2,
			grants:   []domain.CompetencyGrant{{CompetencyID: "communication", Points: 10}},
			requires: []string{"intro", "tour"}},
	}

	for _, branch := range []domain.Campaign{campaign, variant} {
		byKey := make(map[string]string, len(specs))
		for _, spec := range specs {
			mission, err := domain.CreateMission(domain.CreateMissionInput{
				CampaignID:       branch.ID,
				Name:             spec.name,
				Type:             "onboarding",
				ExperienceReward: spec.xp,
				CurrencyReward:   spec.currency,
				ConfirmationType: spec.confirmation,
				MinRank:          spec.minRank,
				Competencies:     spec.grants,
			}, nil)
			if err != nil {
				return domain.Campaign{}, fmt.Errorf("create mission %s: %w", spec.key, err)
			}
			if err := store.PutMission(ctx, mission); err != nil {
				return domain.Campaign{}, fmt.Errorf("store mission %s: %w", spec.key, err)
			}
			byKey[spec.key] = mission.ID
		}
		for _, spec := range specs {
			for _, requires := range spec.requires {
				dep, err := domain.NewDependency(byKey[requires], byKey[spec.key])
				if err != nil {
					return domain.Campaign{}, fmt.Errorf("create dependency: %w", err)
				}
				if err := store.PutDependency(ctx, dep); err != nil {
					return domain.Campaign{}, fmt.Errorf("store dependency: %w", err)
				}
			}
		}
	}

	ranks := []domain.Rank{
		{CampaignID: campaign.ID, Level: 1, Name: "Newcomer"},
		{CampaignID: campaign.ID, Level: 2, Name: "Contributor", MinExperience: 50, MinMissions: 2,
			RewardExperience: 10, RewardCurrency: 5},
		{CampaignID: campaign.ID, Level: 3, Name: "Ambassador", MinExperience: 120, MinMissions: 4,
			RequiredCompetencies: map[string]int{"communication": 20},
			RewardExperience:     25, RewardCurrency: 10},
	}
	for _, rank := range ranks {
		if err := store.PutRank(ctx, rank); err != nil {
			return domain.Campaign{}, fmt.Errorf("store rank %d: %w", rank.Level, err)
		}
	}

	return campaign, nil
}
