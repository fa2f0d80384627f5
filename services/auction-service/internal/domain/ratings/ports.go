package ratings

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for rating persistence
type Repository interface {
	// GetStats aggregates the ratings received by a user. Returns ErrUserNotFound for unknown users.
	GetStats(ctx context.Context, userID uuid.UUID) (Stats, error)

	// UpsertRating stores the rating, replacing an earlier one for the same (auction, from, to)
	UpsertRating(ctx context.Context, rating *Rating) error
}

// SettlementFinder returns the parties of a settled auction, or ErrSettlementNotFound
type SettlementFinder interface {
	FindParties(ctx context.Context, auctionID uuid.UUID) (Parties, error)
}

// StatsCache is a read-through cache in front of Repository.GetStats
type StatsCache interface {
	Get(ctx context.Context, userID uuid.UUID) (Stats, bool, error)
	Set(ctx context.Context, userID uuid.UUID, stats Stats, ttl time.Duration) error
	Delete(ctx context.Context, userID uuid.UUID) error
}
