package auctions

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Domain errors
var (
	ErrInvalidAmount      = errors.New("invalid bid amount")
	ErrAuctionNotActive   = errors.New("auction is not active")
	ErrAuctionExpired     = errors.New("auction has ended")
	ErrSelfBidForbidden   = errors.New("seller cannot bid on their own auction")
	ErrBidderBlocked      = errors.New("bidder is blocked from this auction")
	ErrIneligibleRating   = errors.New("bidder rating does not meet the minimum for this auction")
	ErrAuctionNotFound    = errors.New("auction not found")
	ErrBidderNotFound     = errors.New("bidder not found")
	ErrProxyBidNotFound   = errors.New("proxy bid not found")
	ErrNotSeller          = errors.New("only the seller can manage this auction")
	ErrBuyNowUnavailable  = errors.New("buy now is not available for this auction")
	ErrAuctionHasBids     = errors.New("auction already has bids")
	ErrInvalidAuction     = errors.New("invalid auction parameters")
	ErrCannotBlockSelf    = errors.New("seller cannot block themselves")
	ErrSettlementNotFound = errors.New("settlement not found")
)

// OutcomeKind discriminates the result of a bid submission
type OutcomeKind string

const (
	OutcomeBidPlaced OutcomeKind = "bid_placed"
	OutcomeMaxRaised OutcomeKind = "max_raised"
	OutcomeRejected  OutcomeKind = "rejected"
)

// RejectionReason names the precondition a bid failed
type RejectionReason string

const (
	ReasonInvalidAmount    RejectionReason = "invalid_amount"
	ReasonAuctionNotActive RejectionReason = "auction_not_active"
	ReasonAuctionExpired   RejectionReason = "auction_expired"
	ReasonSelfBid          RejectionReason = "self_bid_forbidden"
	ReasonBidderBlocked    RejectionReason = "bidder_blocked"
	ReasonIneligible       RejectionReason = "ineligible_rating"
	ReasonAuctionNotFound  RejectionReason = "auction_not_found"
	ReasonBidderNotFound   RejectionReason = "bidder_not_found"
	ReasonBuyNowUnavail    RejectionReason = "buy_now_unavailable"
)

var reasonErrors = map[RejectionReason]error{
	ReasonInvalidAmount:    ErrInvalidAmount,
	ReasonAuctionNotActive: ErrAuctionNotActive,
	ReasonAuctionExpired:   ErrAuctionExpired,
	ReasonSelfBid:          ErrSelfBidForbidden,
	ReasonBidderBlocked:    ErrBidderBlocked,
	ReasonIneligible:       ErrIneligibleRating,
	ReasonAuctionNotFound:  ErrAuctionNotFound,
	ReasonBidderNotFound:   ErrBidderNotFound,
	ReasonBuyNowUnavail:    ErrBuyNowUnavailable,
}

// BidOutcome is the typed result of SubmitProxyBid and BuyNow.
// Rejections are values, not errors; only infrastructure faults come back as error.
type BidOutcome struct {
	Kind            OutcomeKind
	Reason          RejectionReason
	AuctionID       uuid.UUID
	CurrentPrice    int64
	CurrentWinnerID *uuid.UUID
	EndAt           time.Time
	Extended        bool
}

// Accepted reports whether the bid was applied
func (o BidOutcome) Accepted() bool {
	return o.Kind == OutcomeBidPlaced || o.Kind == OutcomeMaxRaised
}

// Err returns the sentinel matching the rejection reason, or nil when accepted
func (o BidOutcome) Err() error {
	if o.Kind != OutcomeRejected {
		return nil
	}
	if err, ok := reasonErrors[o.Reason]; ok {
		return err
	}
	return ErrInvalidAmount
}

func rejected(auctionID uuid.UUID, reason RejectionReason) BidOutcome {
	return BidOutcome{Kind: OutcomeRejected, Reason: reason, AuctionID: auctionID}
}

func accepted(kind OutcomeKind, a *Auction, extended bool) BidOutcome {
	return BidOutcome{
		Kind:            kind,
		AuctionID:       a.ID,
		CurrentPrice:    a.CurrentPrice,
		CurrentWinnerID: a.CurrentWinnerID,
		EndAt:           a.EndAt,
		Extended:        extended,
	}
}
