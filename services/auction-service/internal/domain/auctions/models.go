package auctions

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/hammer/services/auction-service/internal/domain/proxy"
)

// AuctionStatus represents the lifecycle state of an auction
type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// IsTerminal reports whether no further transition may leave this status
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionStatusEnded || s == AuctionStatusCancelled
}

// MaxAmount is the largest amount in cents any price or maximum may carry.
// Amounts cross the API as JSON numbers, so it is the largest integer a float64 holds exactly.
const MaxAmount int64 = 1 << 53

// Auction is the aggregate root of the bidding core.
// Amounts are in cents.
type Auction struct {
	ID                  uuid.UUID
	SellerID            uuid.UUID
	Title               string
	StartPrice          int64
	StepPrice           int64
	BuyNowPrice         *int64
	Status              AuctionStatus
	EndAt               time.Time
	AutoExtend          bool
	AllowUnratedBidders bool
	BlockedBidders      []uuid.UUID
	CurrentPrice        int64
	CurrentWinnerID     *uuid.UUID
	ExtensionCount      int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsOwnedBy checks if the auction belongs to the given seller
func (a *Auction) IsOwnedBy(userID uuid.UUID) bool {
	return a.SellerID == userID
}

// IsBlocked checks if the bidder has been excluded by the seller
func (a *Auction) IsBlocked(bidderID uuid.UUID) bool {
	return slices.Contains(a.BlockedBidders, bidderID)
}

// IsLeadingBidder checks if the bidder currently holds the lead
func (a *Auction) IsLeadingBidder(bidderID uuid.UUID) bool {
	return a.CurrentWinnerID != nil && *a.CurrentWinnerID == bidderID
}

// MinAllowedMax is the smallest maximum a new proxy bid may carry
func (a *Auction) MinAllowedMax() int64 {
	if a.CurrentPrice == 0 {
		return a.StartPrice
	}
	return a.CurrentPrice + a.StepPrice
}

// CanBeCancelled checks if the seller may still withdraw the auction
func (a *Auction) CanBeCancelled(hasBids bool) bool {
	return a.Status == AuctionStatusActive && !hasBids
}

// resolverState projects the auction onto the inputs the resolver prices against
func (a *Auction) resolverState() proxy.State {
	return proxy.State{
		StartPrice:      a.StartPrice,
		StepPrice:       a.StepPrice,
		CurrentPrice:    a.CurrentPrice,
		CurrentWinnerID: a.CurrentWinnerID,
	}
}

// applyResolution commits a resolver result and reports what changed.
// With no live candidates the winner is cleared and the last committed price is kept.
func (a *Auction) applyResolution(res proxy.Resolution) (priceChanged, winnerChanged bool) {
	newPrice := res.Price
	if !res.HasWinner() {
		newPrice = a.CurrentPrice
	}

	winnerChanged = !sameBidder(a.CurrentWinnerID, res.WinnerID)
	priceChanged = a.CurrentPrice != newPrice

	a.CurrentPrice = newPrice
	a.CurrentWinnerID = res.WinnerID
	return priceChanged, winnerChanged
}

// maybeExtend pushes EndAt out when a bid lands inside the anti-snipe window
func (a *Auction) maybeExtend(at time.Time, policy Policy) bool {
	if !a.AutoExtend || policy.AutoExtendDuration <= 0 {
		return false
	}
	if at.Before(a.EndAt.Add(-policy.AutoExtendThreshold)) {
		return false
	}
	a.EndAt = a.EndAt.Add(policy.AutoExtendDuration)
	a.ExtensionCount++
	return true
}

func sameBidder(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ProxyBid is a bidder's private standing maximum on an auction.
// There is at most one per (auction, bidder); raises update it in place.
type ProxyBid struct {
	AuctionID uuid.UUID
	BidderID  uuid.UUID
	MaxAmount int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BidHistoryEntry is one public price movement. Amount is the displayed price, not a maximum.
type BidHistoryEntry struct {
	ID        uuid.UUID
	AuctionID uuid.UUID
	BidderID  uuid.UUID
	Amount    int64
	CreatedAt time.Time
}

// SettlementStatus represents the state of the post-auction transaction
type SettlementStatus string

const SettlementStatusPendingPayment SettlementStatus = "pending_payment"

// Settlement is the transaction opened between seller and winner when an auction ends with a winner
type Settlement struct {
	ID         uuid.UUID
	AuctionID  uuid.UUID
	SellerID   uuid.UUID
	WinnerID   uuid.UUID
	FinalPrice int64
	Status     SettlementStatus
	CreatedAt  time.Time
}

// Policy is the bidding configuration injected at construction time
type Policy struct {
	MinRatingPercentForBid float64
	AutoExtendThreshold    time.Duration
	AutoExtendDuration     time.Duration
}

// DefaultPolicy returns the marketplace defaults
func DefaultPolicy() Policy {
	return Policy{
		MinRatingPercentForBid: 80,
		AutoExtendThreshold:    5 * time.Minute,
		AutoExtendDuration:     10 * time.Minute,
	}
}

// CreateAuctionCommand represents the command to list a new auction
type CreateAuctionCommand struct {
	SellerID            uuid.UUID
	Title               string
	StartPrice          int64
	StepPrice           int64
	BuyNowPrice         *int64
	EndAt               time.Time
	AutoExtend          bool
	AllowUnratedBidders bool
}

// PlaceProxyBidCommand represents a bidder submitting or raising their maximum
type PlaceProxyBidCommand struct {
	AuctionID uuid.UUID
	BidderID  uuid.UUID
	MaxAmount int64
	At        time.Time
}

// BuyNowCommand represents a bidder taking the buy-now price
type BuyNowCommand struct {
	AuctionID uuid.UUID
	BuyerID   uuid.UUID
	At        time.Time
}

// BlockBidderCommand represents a seller excluding a bidder from their auction
type BlockBidderCommand struct {
	AuctionID uuid.UUID
	SellerID  uuid.UUID
	BidderID  uuid.UUID
	At        time.Time
}

// CancelAuctionCommand represents a seller withdrawing their auction
type CancelAuctionCommand struct {
	AuctionID uuid.UUID
	SellerID  uuid.UUID
	At        time.Time
}
