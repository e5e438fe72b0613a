// Package progression drives the campaign progression engine: per-participant
// mission state machines, the reward ledger, dependency unlock propagation,
// and rank promotion. Every mutating sequence runs inside one storage
// transaction so concurrent actors cannot double-apply rewards.
package progression

import (
	"context"
	stderrors "errors"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	engineerrors "github.com/louisbranch/questline/internal/errors"
	"github.com/louisbranch/questline/internal/platform/cache"
	"github.com/louisbranch/questline/internal/services/engine/checkin"
	"github.com/louisbranch/questline/internal/services/engine/domain"
	"github.com/louisbranch/questline/internal/services/engine/storage"
	"github.com/louisbranch/questline/internal/services/engine/submission"
)

const (
	snapshotCacheSize = 128
	snapshotCacheTTL  = 30 * time.Second
)

// Notifier receives engine notifications after a transaction commits.
type Notifier interface {
	Dispatch(ctx context.Context, notifications []domain.Notification)
	HasUnread(ctx context.Context, participantID string, kind domain.NotificationKind) (bool, error)
}

// Service exposes the progression engine operations.
type Service struct {
	store     storage.Store
	notifier  Notifier
	validator submission.Validator
	verifier  checkin.Verifier

	snapshots *cache.Cache[domain.Snapshot]
	clock     func() time.Time
	logf      func(format string, args ...any)
	tracer    trace.Tracer
}

// Option adjusts optional service collaborators.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLogger overrides the integrity warning logger.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(s *Service) { s.logf = logf }
}

// WithSnapshotTTL overrides how long campaign snapshots are memoized.
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(s *Service) { s.snapshots = cache.New[domain.Snapshot](snapshotCacheSize, ttl) }
}

// New creates a progression service around its collaborators. The validator
// and verifier may be nil when the corresponding mission types are unused.
func New(store storage.Store, notifier Notifier, validator submission.Validator, verifier checkin.Verifier, opts ...Option) *Service {
	s := &Service{
		store:     store,
		notifier:  notifier,
		validator: validator,
		verifier:  verifier,
		snapshots: cache.New[domain.Snapshot](snapshotCacheSize, snapshotCacheTTL),
		clock:     time.Now,
		logf:      log.Printf,
		tracer:    otel.Tracer("questline/progression"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return engineerrors.New(engineerrors.CodeStoreUnavailable, "progression storage is not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// snapshot loads an immutable view of one campaign's graph and ladder.
// Recent snapshots are memoized; graph edits appear after the TTL lapses and
// never retroactively revoke in-flight records.
func (s *Service) snapshot(ctx context.Context, campaignID string) (domain.Snapshot, error) {
	if cached, ok := s.snapshots.Get(campaignID); ok {
		return cached, nil
	}
	snapshot, err := loadSnapshot(ctx, s.store, campaignID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	s.snapshots.Set(campaignID, snapshot)
	return snapshot, nil
}

// loadSnapshot reads the campaign, missions, edges, and the applicable rank
// ladder. A campaign-scoped ladder wholly replaces the global one.
func loadSnapshot(ctx context.Context, store storage.Store, campaignID string) (domain.Snapshot, error) {
	campaign, err := store.GetCampaign(ctx, campaignID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return domain.Snapshot{}, engineerrors.New(engineerrors.CodeCampaignNotFound, "campaign does not exist")
		}
		return domain.Snapshot{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load campaign", err)
	}
	missions, err := store.ListMissions(ctx, campaignID)
	if err != nil {
		return domain.Snapshot{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load missions", err)
	}
	deps, err := store.ListDependencies(ctx, campaignID)
	if err != nil {
		return domain.Snapshot{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load dependencies", err)
	}
	ranks, err := store.ListRanks(ctx, campaignID)
	if err != nil {
		return domain.Snapshot{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load ranks", err)
	}
	if len(ranks) == 0 {
		ranks, err = store.ListRanks(ctx, "")
		if err != nil {
			return domain.Snapshot{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load global ranks", err)
		}
	}
	return domain.NewSnapshot(campaign, missions, deps, domain.NewLadder(ranks)), nil
}

// InvalidateSnapshot drops the memoized view of one campaign after an edit.
func (s *Service) InvalidateSnapshot(campaignID string) {
	s.snapshots.Delete(campaignID)
}

func requireIDs(pairs ...[2]string) error {
	for _, pair := range pairs {
		if strings.TrimSpace(pair[1]) == "" {
			switch pair[0] {
			case "campaign":
				return engineerrors.New(engineerrors.CodeCampaignIDRequired, "campaign id is required")
			case "participant":
				return engineerrors.New(engineerrors.CodeParticipantIDRequired, "participant id is required")
			case "mission":
				return engineerrors.New(engineerrors.CodeMissionIDRequired, "mission id is required")
			}
		}
	}
	return nil
}

func (s *Service) getParticipant(ctx context.Context, store storage.Store, participantID string) (domain.Participant, error) {
	participant, err := store.GetParticipant(ctx, participantID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return domain.Participant{}, engineerrors.New(engineerrors.CodeParticipantNotFound, "participant does not exist")
		}
		return domain.Participant{}, engineerrors.Wrap(engineerrors.CodeStoreUnavailable, "load participant", err)
	}
	return participant, nil
}
