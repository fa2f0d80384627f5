package auctions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/hammer/pkg/events"
	"github.com/floroz/hammer/services/auction-service/internal/domain/ratings"
)

// AuctionRepository defines the interface for auction persistence
type AuctionRepository interface {
	CreateAuction(ctx context.Context, tx pgx.Tx, auction *Auction) error

	// GetAuctionByID reads without locking
	GetAuctionByID(ctx context.Context, auctionID uuid.UUID) (*Auction, error)

	// GetAuctionByIDForUpdate locks the auction row for the rest of the transaction.
	// Every mutation of an auction goes through this lock.
	GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*Auction, error)

	// SaveAuction persists the mutable fields of an auction
	SaveAuction(ctx context.Context, tx pgx.Tx, auction *Auction) error

	// BlockBidder records the bidder in the auction's blocked set. Repeated calls are no-ops.
	BlockBidder(ctx context.Context, tx pgx.Tx, auctionID, bidderID uuid.UUID, at time.Time) error

	// ListExpiredAuctionIDs returns active auctions whose end time is at or before now
	ListExpiredAuctionIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// ProxyBidRepository defines the interface for proxy bid persistence
type ProxyBidRepository interface {
	GetProxyBid(ctx context.Context, tx pgx.Tx, auctionID, bidderID uuid.UUID) (*ProxyBid, error)

	// UpsertProxyBid inserts or updates the single proxy bid of (auction, bidder)
	UpsertProxyBid(ctx context.Context, tx pgx.Tx, bid *ProxyBid) error

	// ListLiveProxyBids returns every proxy bid on the auction except those of excluded bidders
	ListLiveProxyBids(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, exclude []uuid.UUID) ([]*ProxyBid, error)
}

// BidHistoryRepository defines the interface for the public price log
type BidHistoryRepository interface {
	AppendBidHistory(ctx context.Context, tx pgx.Tx, entry *BidHistoryEntry) error
	ListBidHistory(ctx context.Context, auctionID uuid.UUID) ([]*BidHistoryEntry, error)
	CountBidHistory(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (int, error)
}

// SettlementRepository defines the interface for settlement persistence
type SettlementRepository interface {
	CreateSettlement(ctx context.Context, tx pgx.Tx, settlement *Settlement) error
	GetSettlementByAuctionID(ctx context.Context, auctionID uuid.UUID) (*Settlement, error)
}

// OutboxRepository stores events in the caller's transaction
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}

// RatingLookup provides the bidder reputation used by the eligibility check.
// Implementations return ratings.ErrUserNotFound for unknown users.
type RatingLookup interface {
	GetRatingStats(ctx context.Context, userID uuid.UUID) (ratings.Stats, error)
}

// Repositories groups the storage ports of the controller
type Repositories struct {
	Auctions    AuctionRepository
	ProxyBids   ProxyBidRepository
	History     BidHistoryRepository
	Settlements SettlementRepository
	Outbox      OutboxRepository
}
