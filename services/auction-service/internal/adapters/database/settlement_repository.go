package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/hammer/services/auction-service/internal/domain/auctions"
	"github.com/floroz/hammer/services/auction-service/internal/domain/ratings"
)

// PostgresSettlementRepository implements auctions.SettlementRepository and ratings.SettlementFinder
type PostgresSettlementRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSettlementRepository creates a new PostgreSQL settlement repository
func NewPostgresSettlementRepository(pool *pgxpool.Pool) *PostgresSettlementRepository {
	return &PostgresSettlementRepository{pool: pool}
}

// CreateSettlement opens the settlement in the closing transaction.
// The unique auction_id makes a second close of the same auction fail instead of double-settling.
func (r *PostgresSettlementRepository) CreateSettlement(ctx context.Context, tx pgx.Tx, s *auctions.Settlement) error {
	query := `
		INSERT INTO settlements (id, auction_id, seller_id, winner_id, final_price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::settlement_status, $7)
	`
	_, err := tx.Exec(ctx, query,
		s.ID,
		s.AuctionID,
		s.SellerID,
		s.WinnerID,
		s.FinalPrice,
		string(s.Status),
		s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// GetSettlementByAuctionID retrieves the settlement of an auction
func (r *PostgresSettlementRepository) GetSettlementByAuctionID(ctx context.Context, auctionID uuid.UUID) (*auctions.Settlement, error) {
	query := `
		SELECT id, auction_id, seller_id, winner_id, final_price, status, created_at
		FROM settlements
		WHERE auction_id = $1
	`
	var (
		s      auctions.Settlement
		status string
	)
	err := r.pool.QueryRow(ctx, query, auctionID).Scan(
		&s.ID,
		&s.AuctionID,
		&s.SellerID,
		&s.WinnerID,
		&s.FinalPrice,
		&status,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auctions.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	s.Status = auctions.SettlementStatus(status)
	return &s, nil
}

// FindParties returns the seller and winner of a settled auction
func (r *PostgresSettlementRepository) FindParties(ctx context.Context, auctionID uuid.UUID) (ratings.Parties, error) {
	var p ratings.Parties
	err := r.pool.QueryRow(ctx,
		`SELECT seller_id, winner_id FROM settlements WHERE auction_id = $1`,
		auctionID,
	).Scan(&p.SellerID, &p.WinnerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ratings.Parties{}, ratings.ErrSettlementNotFound
		}
		return ratings.Parties{}, fmt.Errorf("failed to get settlement parties: %w", err)
	}
	return p, nil
}
