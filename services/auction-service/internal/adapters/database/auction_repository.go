package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgdb "github.com/floroz/hammer/pkg/database"
	"github.com/floroz/hammer/services/auction-service/internal/domain/auctions"
)

const auctionColumns = `
	a.id, a.seller_id, a.title, a.start_price, a.step_price, a.buy_now_price, a.status, a.end_at,
	a.auto_extend, a.allow_unrated_bidders, a.current_price, a.current_winner_id, a.extension_count,
	a.created_at, a.updated_at,
	ARRAY(
		SELECT b.bidder_id::text FROM auction_blocked_bidders b
		WHERE b.auction_id = a.id
		ORDER BY b.blocked_at, b.bidder_id
	)`

// PostgresAuctionRepository implements auctions.AuctionRepository using pgx
type PostgresAuctionRepository struct {
	pool *pgxpool.Pool // Keep pool for non-transactional reads
}

// NewPostgresAuctionRepository creates a new PostgreSQL auction repository
func NewPostgresAuctionRepository(pool *pgxpool.Pool) *PostgresAuctionRepository {
	return &PostgresAuctionRepository{pool: pool}
}

// CreateAuction inserts a new auction within a transaction
func (r *PostgresAuctionRepository) CreateAuction(ctx context.Context, tx pgx.Tx, a *auctions.Auction) error {
	query := `
		INSERT INTO auctions (
			id, seller_id, title, start_price, step_price, buy_now_price, status, end_at,
			auto_extend, allow_unrated_bidders, current_price, current_winner_id, extension_count,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::auction_status, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := tx.Exec(ctx, query,
		a.ID,
		a.SellerID,
		a.Title,
		a.StartPrice,
		a.StepPrice,
		a.BuyNowPrice,
		string(a.Status),
		a.EndAt,
		a.AutoExtend,
		a.AllowUnratedBidders,
		a.CurrentPrice,
		a.CurrentWinnerID,
		a.ExtensionCount,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

// GetAuctionByID retrieves an auction by its ID (non-transactional read)
func (r *PostgresAuctionRepository) GetAuctionByID(ctx context.Context, auctionID uuid.UUID) (*auctions.Auction, error) {
	return r.getAuctionByID(ctx, r.pool, auctionID, false)
}

// GetAuctionByIDForUpdate retrieves an auction and locks its row until the transaction ends.
// Concurrent bids, blocks and the closing sweep on the same auction serialise here.
func (r *PostgresAuctionRepository) GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.Auction, error) {
	return r.getAuctionByID(ctx, tx, auctionID, true)
}

func (r *PostgresAuctionRepository) getAuctionByID(ctx context.Context, db pkgdb.DBTX, auctionID uuid.UUID, forUpdate bool) (*auctions.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions a WHERE a.id = $1`
	if forUpdate {
		query += " FOR UPDATE OF a"
	}

	a, err := scanAuction(db.QueryRow(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auctions.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return a, nil
}

func scanAuction(row pgx.Row) (*auctions.Auction, error) {
	var (
		a       auctions.Auction
		status  string
		blocked []string
	)
	err := row.Scan(
		&a.ID,
		&a.SellerID,
		&a.Title,
		&a.StartPrice,
		&a.StepPrice,
		&a.BuyNowPrice,
		&status,
		&a.EndAt,
		&a.AutoExtend,
		&a.AllowUnratedBidders,
		&a.CurrentPrice,
		&a.CurrentWinnerID,
		&a.ExtensionCount,
		&a.CreatedAt,
		&a.UpdatedAt,
		&blocked,
	)
	if err != nil {
		return nil, err
	}

	a.Status = auctions.AuctionStatus(status)
	a.BlockedBidders = make([]uuid.UUID, 0, len(blocked))
	for _, raw := range blocked {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked bidder id %q: %w", raw, err)
		}
		a.BlockedBidders = append(a.BlockedBidders, id)
	}
	return &a, nil
}

// SaveAuction persists the fields bidding and closing mutate
func (r *PostgresAuctionRepository) SaveAuction(ctx context.Context, tx pgx.Tx, a *auctions.Auction) error {
	query := `
		UPDATE auctions
		SET status = $1::auction_status,
			end_at = $2,
			current_price = $3,
			current_winner_id = $4,
			extension_count = $5,
			updated_at = $6
		WHERE id = $7
	`
	result, err := tx.Exec(ctx, query,
		string(a.Status),
		a.EndAt,
		a.CurrentPrice,
		a.CurrentWinnerID,
		a.ExtensionCount,
		a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}

	if result.RowsAffected() == 0 {
		return auctions.ErrAuctionNotFound
	}
	return nil
}

// BlockBidder adds the bidder to the auction's blocked set
func (r *PostgresAuctionRepository) BlockBidder(ctx context.Context, tx pgx.Tx, auctionID, bidderID uuid.UUID, at time.Time) error {
	query := `
		INSERT INTO auction_blocked_bidders (auction_id, bidder_id, blocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (auction_id, bidder_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, query, auctionID, bidderID, at); err != nil {
		return fmt.Errorf("failed to block bidder: %w", err)
	}
	return nil
}

// ListExpiredAuctionIDs returns active auctions whose end time has passed, oldest first
func (r *PostgresAuctionRepository) ListExpiredAuctionIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM auctions
		WHERE status = 'active' AND end_at <= $1
		ORDER BY end_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired auctions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan auction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
