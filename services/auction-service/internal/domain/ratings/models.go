package ratings

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidScore       = errors.New("score must be +1 or -1")
	ErrNotParticipant     = errors.New("only the seller and winner of a settled auction can rate each other")
	ErrSettlementNotFound = errors.New("auction has no settlement")
)

// Stats is a user's aggregated reputation
type Stats struct {
	Positive int64   `json:"positive"`
	Negative int64   `json:"negative"`
	Total    int64   `json:"total"`
	Percent  float64 `json:"percent"`
}

// NewStats derives totals and the positive percentage from raw counts
func NewStats(positive, negative int64) Stats {
	total := positive + negative
	stats := Stats{Positive: positive, Negative: negative, Total: total}
	if total > 0 {
		stats.Percent = float64(positive) / float64(total) * 100
	}
	return stats
}

// Rating is one user's verdict on their counterparty after an auction
type Rating struct {
	ID         uuid.UUID
	AuctionID  uuid.UUID
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	Score      int
	Comment    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Parties are the two sides of a settled auction
type Parties struct {
	SellerID uuid.UUID
	WinnerID uuid.UUID
}

// Counterparty returns the other side of the settlement for userID
func (p Parties) Counterparty(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case p.SellerID:
		return p.WinnerID, true
	case p.WinnerID:
		return p.SellerID, true
	}
	return uuid.Nil, false
}

// RateCommand represents a user rating their counterparty
type RateCommand struct {
	AuctionID  uuid.UUID
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	Score      int
	Comment    string
}
