package notifications

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrMalformedEvent = errors.New("malformed event")

// Kind names the message a recipient receives
type Kind string

const (
	KindBidConfirmed     Kind = "bid_confirmed"
	KindOutbid           Kind = "outbid"
	KindAuctionWon       Kind = "auction_won"
	KindAuctionSold      Kind = "auction_sold"
	KindAuctionUnsold    Kind = "auction_unsold"
	KindBlocked          Kind = "blocked"
	KindAuctionWithdrawn Kind = "auction_withdrawn"
)

// Event is an auction event as received from the broker
type Event struct {
	ID     uuid.UUID
	Type   string
	Fields map[string]any
}

// Notification is one message to one user. Delivery and formatting belong to the Dispatcher.
type Notification struct {
	EventID     uuid.UUID
	RecipientID uuid.UUID
	Kind        Kind
	AuctionID   uuid.UUID
	Amount      int64
}

func (e Event) uuidField(name string) (uuid.UUID, error) {
	raw, ok := e.Fields[name].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s missing %q", ErrMalformedEvent, e.Type, name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s has invalid %q: %v", ErrMalformedEvent, e.Type, name, err)
	}
	return id, nil
}

// amountField reads a money field. Struct payloads carry numbers as float64.
func (e Event) amountField(name string) int64 {
	if v, ok := e.Fields[name].(float64); ok {
		return int64(v)
	}
	return 0
}
