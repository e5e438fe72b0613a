package progression

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	engineerrors "github.com/louisbranch/questline/internal/errors"
	"github.com/louisbranch/questline/internal/services/engine/checkin"
	"github.com/louisbranch/questline/internal/services/engine/domain"
	"github.com/louisbranch/questline/internal/services/engine/notify"
	"github.com/louisbranch/questline/internal/services/engine/storage"
	"github.com/louisbranch/questline/internal/services/engine/storage/sqlite"
	"github.com/louisbranch/questline/internal/services/engine/submission"
)

// syncNotifier delivers notifications inline so tests can assert on them
// without waiting on goroutines.
type syncNotifier struct {
	sink *notify.MemorySink
}

func (n *syncNotifier) Dispatch(ctx context.Context, notifications []domain.Notification) {
	for _, notification := range notifications {
		_ = n.sink.Notify(ctx, notification)
	}
}

func (n *syncNotifier) HasUnread(ctx context.Context, participantID string, kind domain.NotificationKind) (bool, error) {
	return n.sink.HasUnread(ctx, participantID, kind)
}

type testEnv struct {
	service  *Service
	store    storage.Store
	sink     *notify.MemorySink
	verifier *checkin.HMACVerifier
}

func fixedTestClock() time.Time {
	return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sink := &notify.MemorySink{}
	verifier := checkin.NewHMACVerifier([]byte("test-secret"), 5*time.Minute)
	verifier.Now = fixedTestClock
	service := New(store, &syncNotifier{sink: sink}, submission.NewPayloadValidator(), verifier,
		WithClock(fixedTestClock),
		WithLogger(func(string, ...any) {}),
		WithSnapshotTTL(0),
	)
	return &testEnv{service: service, store: store, sink: sink, verifier: verifier}
}

func (env *testEnv) seedCampaign(t *testing.T, campaignID string, active bool) {
	t.Helper()
	campaign := domain.Campaign{
		ID:        campaignID,
		Name:      "Onboarding",
		Active:    active,
		CreatedAt: fixedTestClock(),
		UpdatedAt: fixedTestClock(),
	}
	if err := env.store.PutCampaign(context.Background(), campaign); err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
}

func (env *testEnv) seedVariant(t *testing.T, variantID, parentID string) {
	t.Helper()
	variant := domain.Campaign{
		ID:        variantID,
		Name:      "Variant " + variantID,
		Active:    true,
		ParentID:  parentID,
		CreatedAt: fixedTestClock(),
		UpdatedAt: fixedTestClock(),
	}
	if err := env.store.PutCampaign(context.Background(), variant); err != nil {
		t.Fatalf("seed variant: %v", err)
	}
}

func (env *testEnv) seedMission(t *testing.T, mission domain.Mission) {
	t.Helper()
	if mission.Name == "" {
		mission.Name = mission.ID
	}
	if mission.ConfirmationType == "" {
		mission.ConfirmationType = domain.ConfirmationAuto
	}
	if err := env.store.PutMission(context.Background(), mission); err != nil {
		t.Fatalf("seed mission %s: %v", mission.ID, err)
	}
}

func (env *testEnv) seedDependency(t *testing.T, sourceID, targetID string) {
	t.Helper()
	dep := domain.Dependency{SourceMissionID: sourceID, TargetMissionID: targetID}
	if err := env.store.PutDependency(context.Background(), dep); err != nil {
		t.Fatalf("seed dependency %s -> %s: %v", sourceID, targetID, err)
	}
}

func (env *testEnv) seedParticipant(t *testing.T, participantID string) {
	t.Helper()
	participant := domain.Participant{
		ID:          participantID,
		DisplayName: "Participant " + participantID,
		RankLevel:   domain.InitialRankLevel,
		CreatedAt:   fixedTestClock(),
		UpdatedAt:   fixedTestClock(),
	}
	if err := env.store.PutParticipant(context.Background(), participant); err != nil {
		t.Fatalf("seed participant: %v", err)
	}
}

func (env *testEnv) seedRank(t *testing.T, rank domain.Rank) {
	t.Helper()
	if err := env.store.PutRank(context.Background(), rank); err != nil {
		t.Fatalf("seed rank %d: %v", rank.Level, err)
	}
}

func (env *testEnv) seedCompetency(t *testing.T, id, name string) {
	t.Helper()
	if err := env.store.PutCompetency(context.Background(), domain.Competency{ID: id, Name: name}); err != nil {
		t.Fatalf("seed competency %s: %v", id, err)
	}
}

// seedChain builds the M1 -> M2 -> M3 fixture: M2 requires M1, M3 requires
// both M1 and M2.
func (env *testEnv) seedChain(t *testing.T) {
	t.Helper()
	env.seedCampaign(t, "camp", true)
	env.seedMission(t, domain.Mission{ID: "m1", CampaignID: "camp", ExperienceReward: 30, CurrencyReward: 10})
	env.seedMission(t, domain.Mission{ID: "m2", CampaignID: "camp", ConfirmationType: domain.ConfirmationManualReview, ExperienceReward: 20})
	env.seedMission(t, domain.Mission{ID: "m3", CampaignID: "camp", ExperienceReward: 10})
	env.seedDependency(t, "m1", "m2")
	env.seedDependency(t, "m1", "m3")
	env.seedDependency(t, "m2", "m3")
}

func (env *testEnv) recordStatus(t *testing.T, participantID, missionID string) domain.Status {
	t.Helper()
	record, err := env.store.GetRecord(context.Background(), participantID, missionID)
	if err != nil {
		t.Fatalf("get record %s/%s: %v", participantID, missionID, err)
	}
	return record.Status
}

func TestAssignBootstrapsRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedChain(t)
	env.seedParticipant(t, "p1")

	assignment, err := env.service.Assign(ctx, "p1", "camp")
	if err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if assignment.CampaignID != "camp" {
		t.Fatalf("assigned campaign = %s, want camp", assignment.CampaignID)
	}

	if got := env.recordStatus(t, "p1", "m1"); got != domain.StatusAvailable {
		t.Fatalf("m1 status = %s, want AVAILABLE", got)
	}
	for _, missionID := range []string{"m2", "m3"} {
		if got := env.recordStatus(t, "p1", missionID); got != domain.StatusLocked {
			t.Fatalf("%s status = %s, want LOCKED", missionID, got)
		}
	}

	// Repeat assignment is idempotent and never re-rolls.
	again, err := env.service.Assign(ctx, "p1", "camp")
	if err != nil {
		t.Fatalf("repeat Assign returned error: %v", err)
	}
	if again.CampaignID != assignment.CampaignID {
		t.Fatalf("repeat assignment moved the participant to %s", again.CampaignID)
	}
}

func TestAssignRejectsInactiveCampaign(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, "camp", false)
	env.seedParticipant(t, "p1")

	_, err := env.service.Assign(context.Background(), "p1", "camp")
	if !engineerrors.IsCode(err, engineerrors.CodeCampaignInactive) {
		t.Fatalf("error code = %s, want %s", engineerrors.GetCode(err), engineerrors.CodeCampaignInactive)
	}
}

func TestVariantBalancerDistributes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCampaign(t, "camp", true)
	env.seedMission(t, domain.Mission{ID: "base-m1", CampaignID: "camp"})
	env.seedVariant(t, "variant-a", "camp")
	env.seedMission(t, domain.Mission{ID: "var-m1", CampaignID: "variant-a"})

	branches := make(map[string]int)
	for i := 0; i < 3; i++ {
		participantID := fmt.Sprintf("p%d", i)
		env.seedParticipant(t, participantID)
		assignment, err := env.service.Assign(ctx, participantID, "camp")
		if err != nil {
			t.Fatalf("Assign returned error: %v", err)
		}
		branches[assignment.CampaignID]++
	}

	// The first two participants land on different branches; the third goes
	// to the branch with the smaller count, so counts end 2 and 1.
	if branches["camp"]+branches["variant-a"] != 3 {
		t.Fatalf("unexpected branch spread: %v", branches)
	}
	if branches["camp"] == 0 || branches["variant-a"] == 0 {
		t.Fatalf("balancer left a branch empty: %v", branches)
	}
}

func TestUnlockChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedChain(t)
	env.seedParticipant(t, "p1")
	if _, err := env.service.Assign(ctx, "p1", "camp"); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}

	// Completing M1 unlocks M2 only; M3 still needs M2.
	result, err := env.service.Submit(ctx, "p1", "m1", "done")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if result.Status != domain.StatusCompleted {
		t.Fatalf("m1 status = %s, want COMPLETED", result.Status)
	}
	if len(result.Unlocked) != 1 || result.Unlocked[0] != "m2" {
		t.Fatalf("unlocked = %v, want [m2]", result.Unlocked)
	}
	if got := env.recordStatus(t, "p1", "m3"); got != domain.StatusLocked {
		t.Fatalf("m3 status = %s, want LOCKED", got)
	}

	// M2 is manual review: submit parks it, approval completes and unlocks M3.
	if _, err := env.service.Submit(ctx, "p1", "m2", "evidence"); err != nil {
		t.Fatalf("Submit m2 returned error: %v", err)
	}
	if got := env.recordStatus(t, "p1", "m2"); got != domain.StatusPendingReview {
		t.Fatalf("m2 status = %s, want PENDING_REVIEW", got)
	}
	approved, err := env.service.Approve(ctx, "p1", "m2")
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if len(approved.Unlocked) != 1 || approved.Unlocked[0] != "m3" {
		t.Fatalf("unlocked = %v, want [m3]", approved.Unlocked)
	}
}

func TestPartialDependencySubsets(t *testing.T) {
	// A target with three sources unlocks only when all three are complete.
	for mask := 0; mask < 8; mask++ {
		mask := mask
		t.Run(fmt.Sprintf("subset_%03b", mask), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			env.seedCampaign(t, "camp", true)
			sources := []string{"s1", "s2", "s3"}
			for _, sourceID := range sources {
				env.seedMission(t, domain.Mission{ID: sourceID, CampaignID: "camp"})
				env.seedDependency(t, sourceID, "target")
			}
			env.seedMission(t, domain.Mission{ID: "target", CampaignID: "camp"})
			env.seedParticipant(t, "p1")
			if _, err := env.service.Assign(ctx, "p1", "camp"); err != nil {
				t.Fatalf("Assign returned error: %v", err)
			}

			for i, sourceID := range sources {
				if mask&(1<<i) == 0 {
					continue
				}
				if _, err := env.service.Submit(ctx, "p1", sourceID, "done"); err != nil {
					t.Fatalf("Submit %s returned error: %v", sourceID, err)
				}
			}

			want := domain.StatusLocked
			if mask == 7 {
				want = domain.StatusAvailable
			}
			if got := env.recordStatus(t, "p1", "target"); got != want {
				t.Fatalf("target status = %s, want %s", got, want)
			}
		})
	}
}

func TestApproveIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCampaign(t, "camp", true)
	env.seedMission(t, domain.Mission{
		ID: "m1", CampaignID: "camp",
		ConfirmationType: domain.ConfirmationManualReview,
		ExperienceReward: 30, CurrencyReward: 10,
	})
	env.seedParticipant(t, "p1")
	if _, err := env.service.Assign(ctx, "p1", "camp"); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if _, err := env.service.Submit(ctx, "p1", "m1", "evidence"); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if _, err := env.service.Approve(ctx, "p1", "m1"); err != nil {
		t.Fatalf("first Approve returned error: %v", err)
	}
	_, err := env.service.Approve(ctx, "p1", "m1")
	if !engineerrors.IsCode(err, engineerrors.CodeMissionAlreadyCompleted) {
		t.Fatalf("second Approve error code = %s, want %s", engineerrors.GetCode(err), engineerrors.CodeMissionAlreadyCompleted)
	}

	participant, err := env.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant returned error: %v", err)
	}
	if participant.Experience != 30 || participant.Currency != 10 {
		t.Fatalf("totals = (%d, %d), want (30, 10)", participant.Experience, participant.Currency)
	}
}

func TestRejectReturnsToAvailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCampaign(t, "camp", true)
	env.seedMission(t, domain.Mission{
		ID: "m1", CampaignID: "camp",
		ConfirmationType: domain.ConfirmationManualReview,
		ExperienceReward: 30,
	})
	env.seedParticipant(t, "p1")
	if _, err := env.service.Assign(ctx, "p1", "camp"); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if _, err := env.service.Submit(ctx, "p1", "m1", "first attempt"); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	result, err := env.service.Reject(ctx, "p1", "m1", "needs more detail")
	if err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}
	if result.Status != domain.StatusAvailable {
		t.Fatalf("status = %s, want AVAILABLE", result.Status)
	}

	record, err := env.store.GetRecord(ctx, "p1", "m1")
	if err != nil {
		t.Fatalf("GetRecord returned error: %v", err)
	}
	if record.ReviewerComment != "needs more detail" {
		t.Fatalf("reviewer comment = %q", record.ReviewerComment)
	}
	if record.Submission != "first attempt" {
		t.Fatalf("submission should be retained, got %q", record.Submission)
	}

	participant, err := env.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant returned error: %v", err)
	}
	if participant.Experience != 0 {
		t.Fatalf("rejection must not grant rewards, experience = %d", participant.Experience)
	}

	// Resubmission after rejection is permitted.
	if _, err := env.service.Submit(ctx, "p1", "m1", "second attempt"); err != nil {
		t.Fatalf("resubmit returned error: %v", err)
	}
}

func TestSubmitLockedMission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedChain(t)
	env.seedParticipant(t, "p1")
	if _, err := env.service.Assign(ctx, "p1", "camp"); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}

	_, err := env.service.Submit(ctx, "p1", "m2", "too early")
	if !engineerrors.IsCode(err, engineerrors.CodeMissionLocked) {
		t.Fatalf("error code = %s, want %s", engineerrors.GetCode(err), engineerrors.CodeMissionLocked)
	}
}

func TestSubmitMinRankGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCampaign(t, "camp", true)
	env.seedMission(t, domain.Mission{ID: "m1", CampaignID: "camp", MinRank: 3})
	env.seedParticipant(t, "p1")
	if _, err := env.service.Assign(ctx, "p1", "camp"); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}

	_, err := env.service.Submit(ctx, "p1", "m1", "attempt")
	if !engineerrors.IsCode(err, engineerrors.CodeMinRankNotMet) {
		t.Fatalf("error code = %s, want %s", engineerrors.GetCode(err), engineerrors.CodeMinRankNotMet)
	}
}

func TestCheckInCompletesQRMission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCampaign(t, "camp", true)
	env.seedMission(t, domain.Mission{
		ID: "m1", CampaignID: "camp",
		ConfirmationType: domain.ConfirmationQRScan,
		ExperienceReward: 15,
	})
	env.seedParticipant(t, "p1")
	if _, err := env.service.Assign(ctx, "p1", "camp"); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}

	payload, err := env.verifier.Sign("m1", "front-desk", fixedTestClock().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	result, err := env.service.CheckIn(ctx, "p1", "m1", payload)
	if err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	if result.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", result.Status)
	}

	// A payload for a different mission is rejected.
	other, err := env.verifier.Sign("other", "front-desk", fixedTestClock())
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if _, err := env.service.CheckIn(ctx, "p1", "m1", other); !engineerrors.IsCode(err, engineerrors.CodeCheckInInvalid) {
		t.Fatalf("error code = %s, want %s", engineerrors.GetCode(err), engineerrors.CodeCheckInInvalid)
	}
}

func seedLadder(t *testing.T, env *testEnv) {
	t.Helper()
	env.seedCompetency(t, "communication", "Communication")
	env.seedRank(t, domain.Rank{CampaignID: "camp", Level: 1, Name: "Newcomer"})
	env.seedRank(t, domain.Rank{CampaignID: "camp", Level: 2, Name: "Contributor", MinExperience: 100, MinMissions: 2, RequiredCompetencies: map[string]int{"communication": 20}})
	env.seedRank(t, domain.Rank{CampaignID: "camp", Level: 3, Name: "Mentor", MinExperience: 200, MinMissions: 3})
}

func TestCascadingPromotion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCampaign(t, "camp", true)
	seedLadder(t, env)
	env.seedParticipant(t, "p1")

	// Stats already satisfy levels 2 and 3.
	if err := env.store.IncrementParticipantTotals(ctx, "p1", 250, 0); err != nil {
		t.Fatalf("seed totals: %v", err)
	}
	if err := env.store.AddCompetencyPoints(ctx, "p1", "communication", 25); err != nil {
		t.Fatalf("seed competency: %v", err)
	}
	for i := 0; i < 3; i++ {
		record := domain.ProgressionRecord{
			ParticipantID: "p1", MissionID: fmt.Sprintf("m%d", i), CampaignID: "camp",
			Status: domain.StatusCompleted, UpdatedAt: fixedTestClock(),
		}
		if err := env.store.PutRecord(ctx, record); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}

	result, err := env.service.EvaluateRank(ctx, "p1", "camp")
	if err != nil {
		t.Fatalf("EvaluateRank returned error: %v", err)
	}
	if !result.Promoted || result.NewRank != 3 {
		t.Fatalf("promotion = %+v, want promoted to level 3", result)
	}

	participant, err := env.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant returned error: %v", err)
	}
	if participant.RankLevel != 3 {
		t.Fatalf("rank level = %d, want 3", participant.RankLevel)
	}
}

func TestPromotionNamesCompetencyGap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCampaign(t, "camp", true)
	seedLadder(t, env)
	env.seedParticipant(t, "p1")

	// Experience and mission count pass; communication is 15 of 20.
	if err := env.store.IncrementParticipantTotals(ctx, "p1", 150, 0); err != nil {
		t.Fatalf("seed totals: %v", err)
	}
	if err := env.store.AddCompetencyPoints(ctx, "p1", "communication", 15); err != nil {
		t.Fatalf("seed competency: %v", err)
	}
	for i := 0; i < 3; i++ {
		record := domain.ProgressionRecord{
			ParticipantID: "p1", MissionID: fmt.Sprintf("m%d", i), CampaignID: "camp",
			Status: domain.StatusCompleted, UpdatedAt: fixedTestClock(),
		}
		if err := env.store.PutRecord(ctx, record); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}

	result, err := env.service.EvaluateRank(ctx, "p1", "camp")
	if err != nil {
		t.Fatalf("EvaluateRank returned error: %v", err)
	}
	if result.Promoted {
		t.Fatal("participant should not be promoted")
	}
	if len(result.UnmetRequirements) != 1 || result.UnmetRequirements[0] != "communication: 15/20 points" {
		t.Fatalf("unmet requirements = %v", result.UnmetRequirements)
	}

	// An almost-there nudge was emitted; a second evaluation suppresses it
	// while the first is unread.
	unread, err := env.sink.HasUnread(ctx, "p1", domain.NotificationRankProgress)
	if err != nil {
		t.Fatalf("HasUnread returned error: %v", err)
	}
	if !unread {
		t.Fatal("expected an almost-there nudge")
	}
	if _, err := env.service.EvaluateRank(ctx, "p1", "camp"); err != nil {
		t.Fatalf("second EvaluateRank returned error: %v", err)
	}
	nudges := 0
	for _, notification := range env.sink.All() {
		if notification.Kind == domain.NotificationRankProgress {
			nudges++
		}
	}
	if nudges != 1 {
		t.Fatalf("got %d nudges, want 1", nudges)
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, "camp", true)
	env.seedParticipant(t, "p1")

	err := env.service.Reset(context.Background(), "p1", "camp", false)
	if !engineerrors.IsCode(err, engineerrors.CodeResetNotConfirmed) {
		t.Fatalf("error code = %s, want %s", engineerrors.GetCode(err), engineerrors.CodeResetNotConfirmed)
	}
}

func TestResetRebootstraps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedChain(t)
	env.seedParticipant(t, "p1")
	if _, err := env.service.Assign(ctx, "p1", "camp"); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if _, err := env.service.Submit(ctx, "p1", "m1", "done"); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if err := env.service.Reset(ctx, "p1", "camp", true); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	if got := env.recordStatus(t, "p1", "m1"); got != domain.StatusAvailable {
		t.Fatalf("m1 status = %s, want AVAILABLE", got)
	}
	if got := env.recordStatus(t, "p1", "m2"); got != domain.StatusLocked {
		t.Fatalf("m2 status = %s, want LOCKED", got)
	}

	participant, err := env.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant returned error: %v", err)
	}
	if participant.Experience != 0 || participant.Currency != 0 || participant.RankLevel != 1 {
		t.Fatalf("participant not reset: %+v", participant)
	}

	// Rewards can be earned again on the fresh run.
	if _, err := env.service.Submit(ctx, "p1", "m1", "again"); err != nil {
		t.Fatalf("Submit after reset returned error: %v", err)
	}
	participant, err = env.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant returned error: %v", err)
	}
	if participant.Experience != 30 {
		t.Fatalf("experience after re-run = %d, want 30", participant.Experience)
	}
}

func TestQuickCompleteSandbox(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedChain(t)

	// M2 is manual review, but quick-complete bypasses the gate once it is
	// unlocked.
	if _, err := env.service.QuickComplete(ctx, "camp", "m1"); err != nil {
		t.Fatalf("QuickComplete m1 returned error: %v", err)
	}
	result, err := env.service.QuickComplete(ctx, "camp", "m2")
	if err != nil {
		t.Fatalf("QuickComplete m2 returned error: %v", err)
	}
	if result.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", result.Status)
	}

	// Dependency locking still applies to the sandbox.
	env2 := newTestEnv(t)
	env2.seedChain(t)
	if _, err := env2.service.QuickComplete(context.Background(), "camp", "m2"); !engineerrors.IsCode(err, engineerrors.CodeMissionLocked) {
		t.Fatalf("error code = %s, want %s", engineerrors.GetCode(err), engineerrors.CodeMissionLocked)
	}

	sandbox, err := env.service.SandboxParticipant(ctx, "camp")
	if err != nil {
		t.Fatalf("SandboxParticipant returned error: %v", err)
	}
	if !sandbox.Sandbox {
		t.Fatal("sandbox participant should be flagged")
	}

	// Reset clears the run but keeps the identity.
	if err := env.service.ResetSimulation(ctx, "camp"); err != nil {
		t.Fatalf("ResetSimulation returned error: %v", err)
	}
	after, err := env.service.SandboxParticipant(ctx, "camp")
	if err != nil {
		t.Fatalf("SandboxParticipant returned error: %v", err)
	}
	if after.ID != sandbox.ID {
		t.Fatalf("sandbox identity changed: %s -> %s", sandbox.ID, after.ID)
	}
	if got := env.recordStatus(t, sandbox.ID, "m1"); got != domain.StatusAvailable {
		t.Fatalf("m1 status after reset = %s, want AVAILABLE", got)
	}
}

func TestCompleteAllAndUnlockAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedChain(t)
	env.seedParticipant(t, "p1")
	if _, err := env.service.Assign(ctx, "p1", "camp"); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}

	unlocked, err := env.service.UnlockAll(ctx, "p1", "camp")
	if err != nil {
		t.Fatalf("UnlockAll returned error: %v", err)
	}
	if len(unlocked) != 2 {
		t.Fatalf("unlocked %d missions, want 2 (m2, m3)", len(unlocked))
	}

	completed, err := env.service.CompleteAll(ctx, "p1", "camp")
	if err != nil {
		t.Fatalf("CompleteAll returned error: %v", err)
	}
	if len(completed) != 3 {
		t.Fatalf("completed %d missions, want 3", len(completed))
	}

	participant, err := env.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant returned error: %v", err)
	}
	if participant.Experience != 60 {
		t.Fatalf("experience = %d, want 60", participant.Experience)
	}

	// A second run is a no-op.
	completed, err = env.service.CompleteAll(ctx, "p1", "camp")
	if err != nil {
		t.Fatalf("second CompleteAll returned error: %v", err)
	}
	if len(completed) != 0 {
		t.Fatalf("second run completed %d missions, want 0", len(completed))
	}
}

func TestRemoveParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedChain(t)
	env.seedParticipant(t, "p1")
	if _, err := env.service.Assign(ctx, "p1", "camp"); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}

	if err := env.service.RemoveParticipant(ctx, "p1", "camp"); err != nil {
		t.Fatalf("RemoveParticipant returned error: %v", err)
	}
	if _, err := env.store.GetRecord(ctx, "p1", "m1"); err == nil {
		t.Fatal("records should be removed")
	}
	if _, err := env.store.GetAssignment(ctx, "p1", "camp"); err == nil {
		t.Fatal("assignment should be removed")
	}
	if _, err := env.store.GetParticipant(ctx, "p1"); err != nil {
		t.Fatalf("participant identity should survive removal: %v", err)
	}
}

func TestProgressView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedChain(t)
	seedLadder(t, env)
	env.seedParticipant(t, "p1")
	if _, err := env.service.Assign(ctx, "p1", "camp"); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if _, err := env.service.Submit(ctx, "p1", "m1", "done"); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	view, err := env.service.Progress(ctx, "p1", "camp")
	if err != nil {
		t.Fatalf("Progress returned error: %v", err)
	}
	if view.CompletedCount != 1 {
		t.Fatalf("completed count = %d, want 1", view.CompletedCount)
	}
	if len(view.Missions) != 3 {
		t.Fatalf("got %d missions, want 3", len(view.Missions))
	}
	if view.NextRank == nil || view.NextRank.Level != 2 {
		t.Fatalf("next rank = %+v, want level 2", view.NextRank)
	}
	if len(view.UnmetRequirements) == 0 {
		t.Fatal("expected unmet requirements toward rank 2")
	}
}

func TestPublishBlockedByCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCampaign(t, "camp", false)
	env.seedMission(t, domain.Mission{ID: "m1", CampaignID: "camp", ExperienceReward: 10, Description: "a"})
	env.seedMission(t, domain.Mission{ID: "m2", CampaignID: "camp", ExperienceReward: 10, Description: "b"})
	env.seedDependency(t, "m1", "m2")
	env.seedDependency(t, "m2", "m1")

	report, err := env.service.Publish(ctx, "camp")
	if !engineerrors.IsCode(err, engineerrors.CodeCampaignUnpublishable) {
		t.Fatalf("error code = %s, want %s", engineerrors.GetCode(err), engineerrors.CodeCampaignUnpublishable)
	}
	if report.IsValid {
		t.Fatal("report should be invalid")
	}

	campaign, err := env.store.GetCampaign(ctx, "camp")
	if err != nil {
		t.Fatalf("GetCampaign returned error: %v", err)
	}
	if campaign.Active {
		t.Fatal("campaign must stay inactive after a blocked publish")
	}
}

func TestGlobalLadderFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCampaign(t, "camp", true)
	// Global ladder only; the campaign defines none.
	env.seedRank(t, domain.Rank{CampaignID: "", Level: 1, Name: "Novice"})
	env.seedRank(t, domain.Rank{CampaignID: "", Level: 2, Name: "Adept", MinExperience: 50})
	env.seedParticipant(t, "p1")
	if err := env.store.IncrementParticipantTotals(ctx, "p1", 60, 0); err != nil {
		t.Fatalf("seed totals: %v", err)
	}

	result, err := env.service.EvaluateRank(ctx, "p1", "camp")
	if err != nil {
		t.Fatalf("EvaluateRank returned error: %v", err)
	}
	if !result.Promoted || result.NewRank != 2 {
		t.Fatalf("promotion = %+v, want promoted to level 2 via global ladder", result)
	}
}
