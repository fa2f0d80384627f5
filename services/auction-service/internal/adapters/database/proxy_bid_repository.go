package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgdb "github.com/floroz/hammer/pkg/database"
	"github.com/floroz/hammer/services/auction-service/internal/domain/auctions"
)

// PostgresProxyBidRepository implements auctions.ProxyBidRepository using pgx
type PostgresProxyBidRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresProxyBidRepository creates a new PostgreSQL proxy bid repository
func NewPostgresProxyBidRepository(pool *pgxpool.Pool) *PostgresProxyBidRepository {
	return &PostgresProxyBidRepository{pool: pool}
}

// db returns tx when set, otherwise the pool for a plain read
func (r *PostgresProxyBidRepository) db(tx pgx.Tx) pkgdb.DBTX {
	if tx != nil {
		return tx
	}
	return r.pool
}

// GetProxyBid retrieves the standing maximum of one bidder. A nil tx reads from the pool.
func (r *PostgresProxyBidRepository) GetProxyBid(ctx context.Context, tx pgx.Tx, auctionID, bidderID uuid.UUID) (*auctions.ProxyBid, error) {
	query := `
		SELECT auction_id, bidder_id, max_amount, created_at, updated_at
		FROM proxy_bids
		WHERE auction_id = $1 AND bidder_id = $2
	`
	var b auctions.ProxyBid
	err := r.db(tx).QueryRow(ctx, query, auctionID, bidderID).Scan(
		&b.AuctionID,
		&b.BidderID,
		&b.MaxAmount,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auctions.ErrProxyBidNotFound
		}
		return nil, fmt.Errorf("failed to get proxy bid: %w", err)
	}
	return &b, nil
}

// UpsertProxyBid inserts the bidder's maximum or raises the existing one in place
func (r *PostgresProxyBidRepository) UpsertProxyBid(ctx context.Context, tx pgx.Tx, b *auctions.ProxyBid) error {
	query := `
		INSERT INTO proxy_bids (auction_id, bidder_id, max_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (auction_id, bidder_id) DO UPDATE SET
			max_amount = EXCLUDED.max_amount,
			updated_at = EXCLUDED.updated_at
	`
	_, err := tx.Exec(ctx, query,
		b.AuctionID,
		b.BidderID,
		b.MaxAmount,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert proxy bid: %w", err)
	}
	return nil
}

// ListLiveProxyBids returns the auction's proxy bids minus those of excluded bidders
func (r *PostgresProxyBidRepository) ListLiveProxyBids(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, exclude []uuid.UUID) ([]*auctions.ProxyBid, error) {
	query := `
		SELECT auction_id, bidder_id, max_amount, created_at, updated_at
		FROM proxy_bids
		WHERE auction_id = $1 AND NOT (bidder_id = ANY($2::uuid[]))
	`
	rows, err := r.db(tx).Query(ctx, query, auctionID, uuidStrings(exclude))
	if err != nil {
		return nil, fmt.Errorf("failed to query proxy bids: %w", err)
	}
	defer rows.Close()

	var bids []*auctions.ProxyBid
	for rows.Next() {
		var b auctions.ProxyBid
		if err := rows.Scan(&b.AuctionID, &b.BidderID, &b.MaxAmount, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan proxy bid: %w", err)
		}
		bids = append(bids, &b)
	}
	return bids, rows.Err()
}

// uuidStrings never returns nil: a NULL array would make ANY() filter out every row
func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
