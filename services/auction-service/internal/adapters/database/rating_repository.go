package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/hammer/services/auction-service/internal/domain/ratings"
)

// PostgresRatingRepository implements ratings.Repository using pgx
type PostgresRatingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRatingRepository creates a new PostgreSQL rating repository
func NewPostgresRatingRepository(pool *pgxpool.Pool) *PostgresRatingRepository {
	return &PostgresRatingRepository{pool: pool}
}

// GetStats counts the ratings a user has received
func (r *PostgresRatingRepository) GetStats(ctx context.Context, userID uuid.UUID) (ratings.Stats, error) {
	query := `
		SELECT
			COUNT(r.id) FILTER (WHERE r.score > 0),
			COUNT(r.id) FILTER (WHERE r.score < 0)
		FROM users u
		LEFT JOIN ratings r ON r.to_user_id = u.id
		WHERE u.id = $1
		GROUP BY u.id
	`
	var positive, negative int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&positive, &negative); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ratings.Stats{}, ratings.ErrUserNotFound
		}
		return ratings.Stats{}, fmt.Errorf("failed to get rating stats: %w", err)
	}
	return ratings.NewStats(positive, negative), nil
}

// UpsertRating inserts the rating or replaces the earlier verdict for the same (auction, from, to)
func (r *PostgresRatingRepository) UpsertRating(ctx context.Context, rating *ratings.Rating) error {
	query := `
		INSERT INTO ratings (id, auction_id, from_user_id, to_user_id, score, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (auction_id, from_user_id, to_user_id) DO UPDATE SET
			score = EXCLUDED.score,
			comment = EXCLUDED.comment,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		rating.ID,
		rating.AuctionID,
		rating.FromUserID,
		rating.ToUserID,
		rating.Score,
		rating.Comment,
		rating.CreatedAt,
		rating.UpdatedAt,
	).Scan(&rating.ID, &rating.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}
