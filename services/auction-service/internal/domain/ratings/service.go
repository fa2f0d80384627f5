package ratings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service serves rating lookups for bid eligibility and records ratings after settlement
type Service struct {
	repo        Repository
	settlements SettlementFinder
	cache       StatsCache
	cacheTTL    time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new rating service. cache may be nil.
func NewService(repo Repository, settlements SettlementFinder, cache StatsCache, cacheTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		settlements: settlements,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// GetRatingStats returns a user's reputation. Cache failures fall back to the database.
func (s *Service) GetRatingStats(ctx context.Context, userID uuid.UUID) (Stats, error) {
	if s.cache != nil {
		stats, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("rating cache read failed", "user_id", userID, "error", err)
		} else if ok {
			return stats, nil
		}
	}

	stats, err := s.repo.GetStats(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, stats, s.cacheTTL); err != nil {
			s.logger.Warn("rating cache write failed", "user_id", userID, "error", err)
		}
	}
	return stats, nil
}

// RateCounterparty records a +1/-1 rating between the seller and winner of a settled auction.
// Rating again replaces the earlier verdict.
func (s *Service) RateCounterparty(ctx context.Context, cmd RateCommand) (*Rating, error) {
	if cmd.Score != 1 && cmd.Score != -1 {
		return nil, ErrInvalidScore
	}

	parties, err := s.settlements.FindParties(ctx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}
	counterparty, ok := parties.Counterparty(cmd.FromUserID)
	if !ok || counterparty != cmd.ToUserID {
		return nil, ErrNotParticipant
	}

	now := s.now()
	rating := &Rating{
		ID:         uuid.New(),
		AuctionID:  cmd.AuctionID,
		FromUserID: cmd.FromUserID,
		ToUserID:   cmd.ToUserID,
		Score:      cmd.Score,
		Comment:    strings.TrimSpace(cmd.Comment),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.UpsertRating(ctx, rating); err != nil {
		return nil, fmt.Errorf("failed to save rating: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cmd.ToUserID); err != nil {
			s.logger.Warn("rating cache invalidation failed", "user_id", cmd.ToUserID, "error", err)
		}
	}
	return rating, nil
}
