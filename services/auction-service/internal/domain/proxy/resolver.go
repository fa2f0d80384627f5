// Package proxy resolves the displayed price and leading bidder of an auction
// from its live proxy (maximum) bids. It has no side effects and no storage.
package proxy

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Bid is a bidder's standing maximum on one auction
type Bid struct {
	BidderID  uuid.UUID
	MaxAmount int64
	CreatedAt time.Time
}

// State is the committed auction state the resolver prices against
type State struct {
	StartPrice      int64
	StepPrice       int64
	CurrentPrice    int64
	CurrentWinnerID *uuid.UUID
}

// Resolution is the outcome of a resolution pass.
// WinnerID is nil when there are no live candidates; Price is then 0 and callers decide what to keep.
type Resolution struct {
	WinnerID *uuid.UUID
	Price    int64
}

// HasWinner reports whether the resolution produced a leading bidder
func (r Resolution) HasWinner() bool {
	return r.WinnerID != nil
}

// Rank returns a copy of bids ordered by maximum descending, then earliest first.
// Remaining ties are broken by bidder id so the order is total.
func Rank(bids []Bid) []Bid {
	ranked := make([]Bid, len(bids))
	copy(ranked, bids)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.MaxAmount != b.MaxAmount {
			return a.MaxAmount > b.MaxAmount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.BidderID.String() < b.BidderID.String()
	})
	return ranked
}

// Resolve computes the leading bidder and displayed price.
// live must already exclude blocked bidders.
//
// The leader pays one step above the runner-up's maximum, capped at their own maximum.
// A lone bidder pays the floor: the start price, or one step above the committed price
// when they are taking over from someone else. A lone bidder who already leads has nobody
// to outbid, so their own raises never move the price.
func Resolve(state State, live []Bid) Resolution {
	if len(live) == 0 {
		return Resolution{}
	}

	ranked := Rank(live)
	top1 := ranked[0]
	winner := top1.BidderID

	if len(ranked) == 1 {
		floor := max(state.StartPrice, addStep(state.CurrentPrice, state.StepPrice))
		if state.CurrentWinnerID != nil && *state.CurrentWinnerID == winner {
			floor = max(state.StartPrice, state.CurrentPrice)
		}
		return Resolution{WinnerID: &winner, Price: min(top1.MaxAmount, floor)}
	}

	top2 := ranked[1]
	return Resolution{
		WinnerID: &winner,
		Price:    min(top1.MaxAmount, addStep(top2.MaxAmount, state.StepPrice)),
	}
}

// addStep adds a non-negative step, saturating at math.MaxInt64
func addStep(amount, step int64) int64 {
	if step > 0 && amount > math.MaxInt64-step {
		return math.MaxInt64
	}
	return amount + step
}
