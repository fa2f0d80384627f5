package auctions

import (
	"time"

	"github.com/google/uuid"

	"github.com/floroz/hammer/pkg/events"
)

// Event types, used as routing keys on the auction.events exchange
const (
	EventBidPlaced        = "bid.placed"
	EventBidOutbid        = "bid.outbid"
	EventWinnerDetermined = "auction.winner_determined"
	EventNoBidsReceived   = "auction.no_bids"
	EventBidderBlocked    = "auction.bidder_blocked"
	EventAuctionCancelled = "auction.cancelled"
)

func newBidPlacedEvent(a *Auction, at time.Time) (*events.OutboxEvent, error) {
	return newEvent(EventBidPlaced, a.ID, at, map[string]any{
		"auction_id": a.ID.String(),
		"bidder_id":  a.CurrentWinnerID.String(),
		"amount":     a.CurrentPrice,
		"timestamp":  at.UTC().Format(time.RFC3339Nano),
	})
}

func newOutbidEvent(a *Auction, previousWinnerID uuid.UUID, at time.Time) (*events.OutboxEvent, error) {
	return newEvent(EventBidOutbid, a.ID, at, map[string]any{
		"auction_id":         a.ID.String(),
		"previous_winner_id": previousWinnerID.String(),
		"new_price":          a.CurrentPrice,
	})
}

func newWinnerDeterminedEvent(a *Auction, at time.Time) (*events.OutboxEvent, error) {
	return newEvent(EventWinnerDetermined, a.ID, at, map[string]any{
		"auction_id":  a.ID.String(),
		"seller_id":   a.SellerID.String(),
		"winner_id":   a.CurrentWinnerID.String(),
		"final_price": a.CurrentPrice,
	})
}

func newNoBidsEvent(a *Auction, at time.Time) (*events.OutboxEvent, error) {
	return newEvent(EventNoBidsReceived, a.ID, at, map[string]any{
		"auction_id": a.ID.String(),
		"seller_id":  a.SellerID.String(),
	})
}

func newBidderBlockedEvent(a *Auction, bidderID uuid.UUID, at time.Time) (*events.OutboxEvent, error) {
	return newEvent(EventBidderBlocked, a.ID, at, map[string]any{
		"auction_id": a.ID.String(),
		"bidder_id":  bidderID.String(),
	})
}

func newCancelledEvent(a *Auction, at time.Time) (*events.OutboxEvent, error) {
	return newEvent(EventAuctionCancelled, a.ID, at, map[string]any{
		"auction_id": a.ID.String(),
		"seller_id":  a.SellerID.String(),
	})
}

func newEvent(eventType string, aggregateID uuid.UUID, at time.Time, fields map[string]any) (*events.OutboxEvent, error) {
	payload, err := events.EncodePayload(fields)
	if err != nil {
		return nil, err
	}
	return events.NewOutboxEvent(eventType, aggregateID, payload, at), nil
}
