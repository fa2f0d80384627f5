package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/hammer/services/auction-service/internal/domain/auctions"
)

// PostgresBidHistoryRepository implements auctions.BidHistoryRepository using pgx
type PostgresBidHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBidHistoryRepository creates a new PostgreSQL bid history repository
func NewPostgresBidHistoryRepository(pool *pgxpool.Pool) *PostgresBidHistoryRepository {
	return &PostgresBidHistoryRepository{pool: pool}
}

// AppendBidHistory appends a public price movement within a transaction
func (r *PostgresBidHistoryRepository) AppendBidHistory(ctx context.Context, tx pgx.Tx, e *auctions.BidHistoryEntry) error {
	query := `
		INSERT INTO bid_history (id, auction_id, bidder_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, query, e.ID, e.AuctionID, e.BidderID, e.Amount, e.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert bid history entry: %w", err)
	}
	return nil
}

// ListBidHistory returns the log in insertion order
func (r *PostgresBidHistoryRepository) ListBidHistory(ctx context.Context, auctionID uuid.UUID) ([]*auctions.BidHistoryEntry, error) {
	query := `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bid_history
		WHERE auction_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bid history: %w", err)
	}
	defer rows.Close()

	var entries []*auctions.BidHistoryEntry
	for rows.Next() {
		var e auctions.BidHistoryEntry
		if err := rows.Scan(&e.ID, &e.AuctionID, &e.BidderID, &e.Amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid history entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CountBidHistory counts entries inside the caller's transaction
func (r *PostgresBidHistoryRepository) CountBidHistory(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM bid_history WHERE auction_id = $1`, auctionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bid history: %w", err)
	}
	return count, nil
}
