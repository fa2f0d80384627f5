package notifications

// Event types this package understands; they mirror the routing keys published by the auction service.
const (
	eventBidPlaced        = "bid.placed"
	eventBidOutbid        = "bid.outbid"
	eventWinnerDetermined = "auction.winner_determined"
	eventNoBids           = "auction.no_bids"
	eventBidderBlocked    = "auction.bidder_blocked"
	eventCancelled        = "auction.cancelled"
)

type recipient struct {
	field  string
	kind   Kind
	amount string
}

var routes = map[string][]recipient{
	eventBidPlaced:        {{field: "bidder_id", kind: KindBidConfirmed, amount: "amount"}},
	eventBidOutbid:        {{field: "previous_winner_id", kind: KindOutbid, amount: "new_price"}},
	eventWinnerDetermined: {{field: "winner_id", kind: KindAuctionWon, amount: "final_price"}, {field: "seller_id", kind: KindAuctionSold, amount: "final_price"}},
	eventNoBids:           {{field: "seller_id", kind: KindAuctionUnsold}},
	eventBidderBlocked:    {{field: "bidder_id", kind: KindBlocked}},
	eventCancelled:        {{field: "seller_id", kind: KindAuctionWithdrawn}},
}

// Route maps an event to the notifications it produces. Unknown event types produce none.
func Route(event Event) ([]Notification, error) {
	targets, ok := routes[event.Type]
	if !ok {
		return nil, nil
	}

	auctionID, err := event.uuidField("auction_id")
	if err != nil {
		return nil, err
	}

	out := make([]Notification, 0, len(targets))
	for _, target := range targets {
		userID, err := event.uuidField(target.field)
		if err != nil {
			return nil, err
		}
		n := Notification{
			EventID:     event.ID,
			RecipientID: userID,
			Kind:        target.kind,
			AuctionID:   auctionID,
		}
		if target.amount != "" {
			n.Amount = event.amountField(target.amount)
		}
		out = append(out, n)
	}
	return out, nil
}
