package auctions_test

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/hammer/services/auction-service/internal/domain/auctions"
	"github.com/floroz/hammer/services/auction-service/internal/domain/ratings"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memStore
	svc    *auctions.Service
	seller uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	svc := auctions.NewService(store, store.repositories(), store, auctions.DefaultPolicy(), discardLogger(),
		auctions.WithClock(func() time.Time { return base }))
	return &fixture{
		store:  store,
		svc:    svc,
		seller: store.addUser(ratings.NewStats(50, 0)),
	}
}

func (f *fixture) createAuction(t *testing.T, mutate ...func(*auctions.CreateAuctionCommand)) *auctions.Auction {
	t.Helper()
	cmd := auctions.CreateAuctionCommand{
		SellerID:            f.seller,
		Title:               "Vintage camera",
		StartPrice:          100,
		StepPrice:           10,
		EndAt:               base.Add(24 * time.Hour),
		AllowUnratedBidders: true,
	}
	for _, m := range mutate {
		m(&cmd)
	}
	a, err := f.svc.CreateAuction(context.Background(), cmd)
	require.NoError(t, err)
	return a
}

func (f *fixture) bidder() uuid.UUID {
	return f.store.addUser(ratings.NewStats(10, 0))
}

func (f *fixture) bid(t *testing.T, auctionID, bidderID uuid.UUID, maxAmount int64, at time.Time) auctions.BidOutcome {
	t.Helper()
	out, err := f.svc.SubmitProxyBid(context.Background(), auctions.PlaceProxyBidCommand{
		AuctionID: auctionID,
		BidderID:  bidderID,
		MaxAmount: maxAmount,
		At:        at,
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) auction(t *testing.T, id uuid.UUID) *auctions.Auction {
	t.Helper()
	a, err := f.svc.GetAuction(context.Background(), id)
	require.NoError(t, err)
	return a
}

func minute(n int) time.Time {
	return base.Add(time.Duration(n) * time.Minute)
}

func TestCreateAuction_Validation(t *testing.T) {
	buyNowBelowStart := int64(50)

	tests := []struct {
		name   string
		mutate func(*auctions.CreateAuctionCommand)
	}{
		{"missing title", func(c *auctions.CreateAuctionCommand) { c.Title = "  " }},
		{"negative start price", func(c *auctions.CreateAuctionCommand) { c.StartPrice = -1 }},
		{"zero step", func(c *auctions.CreateAuctionCommand) { c.StepPrice = 0 }},
		{"buy now below start", func(c *auctions.CreateAuctionCommand) { c.BuyNowPrice = &buyNowBelowStart }},
		{"end time in the past", func(c *auctions.CreateAuctionCommand) { c.EndAt = base.Add(-time.Second) }},
		{"start price above ceiling", func(c *auctions.CreateAuctionCommand) { c.StartPrice = auctions.MaxAmount + 1 }},
		{"step above ceiling", func(c *auctions.CreateAuctionCommand) { c.StepPrice = auctions.MaxAmount + 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			cmd := auctions.CreateAuctionCommand{
				SellerID: f.seller, Title: "Lamp", StartPrice: 100, StepPrice: 10, EndAt: base.Add(time.Hour),
			}
			tt.mutate(&cmd)

			_, err := f.svc.CreateAuction(context.Background(), cmd)
			assert.ErrorIs(t, err, auctions.ErrInvalidAuction)
		})
	}

	t.Run("valid auction starts active without a price", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)

		assert.Equal(t, auctions.AuctionStatusActive, a.Status)
		assert.Zero(t, a.CurrentPrice)
		assert.Nil(t, a.CurrentWinnerID)
	})
}

func TestSubmitProxyBid_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		setup  func(t *testing.T, f *fixture) (auctionID, bidderID uuid.UUID, maxAmount int64, at time.Time)
		reason auctions.RejectionReason
		err    error
	}{
		{
			name: "non-positive amount",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				return f.createAuction(t).ID, f.bidder(), 0, minute(1)
			},
			reason: auctions.ReasonInvalidAmount,
			err:    auctions.ErrInvalidAmount,
		},
		{
			name: "non-positive amount is checked before existence",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				return uuid.New(), f.bidder(), -5, minute(1)
			},
			reason: auctions.ReasonInvalidAmount,
			err:    auctions.ErrInvalidAmount,
		},
		{
			name: "amount above ceiling",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				return f.createAuction(t).ID, f.bidder(), auctions.MaxAmount + 1, minute(1)
			},
			reason: auctions.ReasonInvalidAmount,
			err:    auctions.ErrInvalidAmount,
		},
		{
			name: "unknown auction",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				return uuid.New(), f.bidder(), 500, minute(1)
			},
			reason: auctions.ReasonAuctionNotFound,
			err:    auctions.ErrAuctionNotFound,
		},
		{
			name: "cancelled auction",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				a := f.createAuction(t)
				_, err := f.svc.CancelAuction(ctx, auctions.CancelAuctionCommand{AuctionID: a.ID, SellerID: f.seller})
				require.NoError(t, err)
				return a.ID, f.bidder(), 500, minute(1)
			},
			reason: auctions.ReasonAuctionNotActive,
			err:    auctions.ErrAuctionNotActive,
		},
		{
			name: "bid exactly at end time",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				a := f.createAuction(t)
				return a.ID, f.bidder(), 500, a.EndAt
			},
			reason: auctions.ReasonAuctionExpired,
			err:    auctions.ErrAuctionExpired,
		},
		{
			name: "seller bids on own auction",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				return f.createAuction(t).ID, f.seller, 500, minute(1)
			},
			reason: auctions.ReasonSelfBid,
			err:    auctions.ErrSelfBidForbidden,
		},
		{
			name: "blocked bidder below minimum reports blocked",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				a := f.createAuction(t)
				bidder := f.bidder()
				_, err := f.svc.BlockBidder(ctx, auctions.BlockBidderCommand{AuctionID: a.ID, SellerID: f.seller, BidderID: bidder})
				require.NoError(t, err)
				return a.ID, bidder, 10, minute(1)
			},
			reason: auctions.ReasonBidderBlocked,
			err:    auctions.ErrBidderBlocked,
		},
		{
			name: "unrated bidder on auction that requires ratings",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				a := f.createAuction(t, func(c *auctions.CreateAuctionCommand) { c.AllowUnratedBidders = false })
				return a.ID, f.store.addUser(ratings.Stats{}), 500, minute(1)
			},
			reason: auctions.ReasonIneligible,
			err:    auctions.ErrIneligibleRating,
		},
		{
			name: "rating below threshold",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				return f.createAuction(t).ID, f.store.addUser(ratings.NewStats(7, 3)), 500, minute(1)
			},
			reason: auctions.ReasonIneligible,
			err:    auctions.ErrIneligibleRating,
		},
		{
			name: "unknown bidder",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				return f.createAuction(t).ID, uuid.New(), 500, minute(1)
			},
			reason: auctions.ReasonBidderNotFound,
			err:    auctions.ErrBidderNotFound,
		},
		{
			name: "below start price",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				return f.createAuction(t).ID, f.bidder(), 99, minute(1)
			},
			reason: auctions.ReasonInvalidAmount,
			err:    auctions.ErrInvalidAmount,
		},
		{
			name: "below current price plus step",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				a := f.createAuction(t)
				f.bid(t, a.ID, f.bidder(), 300, minute(1))
				f.bid(t, a.ID, f.bidder(), 200, minute(2))
				// price is now 210
				return a.ID, f.bidder(), 219, minute(3)
			},
			reason: auctions.ReasonInvalidAmount,
			err:    auctions.ErrInvalidAmount,
		},
		{
			name: "lowering a standing maximum",
			setup: func(t *testing.T, f *fixture) (uuid.UUID, uuid.UUID, int64, time.Time) {
				a := f.createAuction(t)
				bidder := f.bidder()
				f.bid(t, a.ID, bidder, 900, minute(1))
				return a.ID, bidder, 500, minute(2)
			},
			reason: auctions.ReasonInvalidAmount,
			err:    auctions.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			auctionID, bidderID, maxAmount, at := tt.setup(t, f)
			eventsBefore := len(f.store.eventTypes())

			out := f.bid(t, auctionID, bidderID, maxAmount, at)

			assert.Equal(t, auctions.OutcomeRejected, out.Kind)
			assert.False(t, out.Accepted())
			assert.Equal(t, tt.reason, out.Reason)
			assert.ErrorIs(t, out.Err(), tt.err)
			assert.Len(t, f.store.eventTypes(), eventsBefore, "rejections emit nothing")
		})
	}
}

func TestSubmitProxyBid_SingleBidderCap(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	alice := f.bidder()

	out := f.bid(t, a.ID, alice, 1000, minute(1))

	require.Equal(t, auctions.OutcomeBidPlaced, out.Kind)
	assert.Nil(t, out.Err())
	assert.Equal(t, int64(100), out.CurrentPrice, "a lone bidder pays the start price, not their maximum")
	assert.Equal(t, alice, *out.CurrentWinnerID)
	assert.Equal(t, []string{auctions.EventBidPlaced}, f.store.eventTypes())

	history, err := f.svc.GetBidHistory(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(100), history[0].Amount)
	assert.Equal(t, alice, history[0].BidderID)
}

func TestSubmitProxyBid_TwoBidderIncrementRule(t *testing.T) {
	t.Run("runner-up arrives second", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)
		alice, bob := f.bidder(), f.bidder()

		f.bid(t, a.ID, alice, 500, minute(1))
		out := f.bid(t, a.ID, bob, 300, minute(2))

		assert.Equal(t, auctions.OutcomeBidPlaced, out.Kind)
		assert.Equal(t, alice, *out.CurrentWinnerID)
		assert.Equal(t, int64(310), out.CurrentPrice)
		assert.Empty(t, f.store.eventsOfType(auctions.EventBidOutbid), "leader did not change")
	})

	t.Run("leader arrives second and outbids", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)
		alice, bob := f.bidder(), f.bidder()

		f.bid(t, a.ID, bob, 300, minute(1))
		out := f.bid(t, a.ID, alice, 500, minute(2))

		assert.Equal(t, alice, *out.CurrentWinnerID)
		assert.Equal(t, int64(310), out.CurrentPrice)

		outbid := f.store.eventsOfType(auctions.EventBidOutbid)
		require.Len(t, outbid, 1)
		assert.Equal(t, bob.String(), outbid[0]["previous_winner_id"])
		assert.InDelta(t, 310, outbid[0]["new_price"], 0)
	})
}

func TestSubmitProxyBid_TieGoesToEarliest(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	alice, bob := f.bidder(), f.bidder()

	f.bid(t, a.ID, alice, 500, minute(1))
	out := f.bid(t, a.ID, bob, 500, minute(2))

	assert.Equal(t, alice, *out.CurrentWinnerID)
	assert.Equal(t, int64(500), out.CurrentPrice)
}

func TestSubmitProxyBid_TieKeepsFirstPlacement(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	alice, bob := f.bidder(), f.bidder()

	f.bid(t, a.ID, alice, 300, minute(1))
	out := f.bid(t, a.ID, bob, 500, minute(2))
	require.Equal(t, bob, *out.CurrentWinnerID)
	require.Equal(t, int64(310), out.CurrentPrice)

	// Alice placed her proxy first, so matching Bob's maximum later wins the tie.
	out = f.bid(t, a.ID, alice, 500, minute(3))

	assert.Equal(t, auctions.OutcomeBidPlaced, out.Kind)
	assert.Equal(t, alice, *out.CurrentWinnerID)
	assert.Equal(t, int64(500), out.CurrentPrice)
}

func TestSubmitProxyBid_MaximumAtCeiling(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	alice, bob := f.bidder(), f.bidder()

	f.bid(t, a.ID, alice, auctions.MaxAmount, minute(1))
	out := f.bid(t, a.ID, bob, auctions.MaxAmount-5, minute(2))

	require.True(t, out.Accepted())
	assert.Equal(t, alice, *out.CurrentWinnerID)
	assert.Equal(t, auctions.MaxAmount, out.CurrentPrice)
}

func TestSubmitProxyBid_RaiseByLeader(t *testing.T) {
	t.Run("headroom keeps price and records the raise", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)
		alice, bob := f.bidder(), f.bidder()
		f.bid(t, a.ID, alice, 500, minute(1))
		f.bid(t, a.ID, bob, 300, minute(2))
		eventsBefore := f.store.eventTypes()

		out := f.bid(t, a.ID, alice, 800, minute(3))

		assert.Equal(t, auctions.OutcomeMaxRaised, out.Kind)
		assert.True(t, out.Accepted())
		assert.Equal(t, alice, *out.CurrentWinnerID)
		assert.Equal(t, int64(310), out.CurrentPrice)
		assert.Equal(t, eventsBefore, f.store.eventTypes(), "no notification for a silent raise")

		history, err := f.svc.GetBidHistory(context.Background(), a.ID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, int64(310), history[2].Amount)
		assert.Equal(t, alice, history[2].BidderID)

		mine, err := f.svc.GetMyProxyBid(context.Background(), a.ID, alice)
		require.NoError(t, err)
		assert.Equal(t, int64(800), mine.MaxAmount)
	})

	t.Run("sole leader raising keeps the price", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)
		alice := f.bidder()
		f.bid(t, a.ID, alice, 200, minute(1))

		out := f.bid(t, a.ID, alice, 400, minute(2))

		assert.Equal(t, auctions.OutcomeMaxRaised, out.Kind)
		assert.Equal(t, int64(100), out.CurrentPrice)
	})

	t.Run("raise past a capping maximum moves the price", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)
		alice, bob := f.bidder(), f.bidder()
		f.bid(t, a.ID, bob, 300, minute(1))
		capped := f.bid(t, a.ID, alice, 305, minute(2))
		require.Equal(t, int64(305), capped.CurrentPrice)

		out := f.bid(t, a.ID, alice, 400, minute(3))

		assert.Equal(t, auctions.OutcomeBidPlaced, out.Kind)
		assert.Equal(t, alice, *out.CurrentWinnerID)
		assert.Equal(t, int64(310), out.CurrentPrice)
	})
}

func TestSubmitProxyBid_MonotonicPrice(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	bidders := []uuid.UUID{f.bidder(), f.bidder(), f.bidder(), f.bidder()}
	maxima := make(map[uuid.UUID]int64)
	rng := rand.New(rand.NewPCG(7, 11))

	var last int64
	for i := range 200 {
		current := f.auction(t, a.ID)
		bidder := bidders[rng.IntN(len(bidders))]
		amount := current.MinAllowedMax() + rng.Int64N(50)

		out := f.bid(t, a.ID, bidder, amount, base.Add(time.Duration(i)*time.Second))
		if !out.Accepted() {
			continue
		}
		maxima[bidder] = amount

		require.GreaterOrEqual(t, out.CurrentPrice, last, "price regressed at step %d", i)
		require.NotNil(t, out.CurrentWinnerID)
		require.GreaterOrEqual(t, maxima[*out.CurrentWinnerID], out.CurrentPrice, "winner charged above maximum")
		last = out.CurrentPrice
	}

	history, err := f.svc.GetBidHistory(context.Background(), a.ID)
	require.NoError(t, err)
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i].Amount, history[i-1].Amount)
	}
}

func TestSubmitProxyBid_AutoExtend(t *testing.T) {
	policy := auctions.DefaultPolicy()

	tests := []struct {
		name       string
		autoExtend bool
		offset     time.Duration
		extended   bool
	}{
		{"just inside the window", true, -policy.AutoExtendThreshold + time.Second, true},
		{"exactly at the window edge", true, -policy.AutoExtendThreshold, true},
		{"just before the window", true, -policy.AutoExtendThreshold - time.Second, false},
		{"inside the window but disabled", false, -time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.createAuction(t, func(c *auctions.CreateAuctionCommand) { c.AutoExtend = tt.autoExtend })

			out := f.bid(t, a.ID, f.bidder(), 500, a.EndAt.Add(tt.offset))

			require.True(t, out.Accepted())
			assert.Equal(t, tt.extended, out.Extended)
			if tt.extended {
				assert.Equal(t, a.EndAt.Add(policy.AutoExtendDuration), out.EndAt)
				assert.Equal(t, 1, f.auction(t, a.ID).ExtensionCount)
			} else {
				assert.Equal(t, a.EndAt, out.EndAt)
			}
		})
	}

	t.Run("repeated late bids keep extending", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t, func(c *auctions.CreateAuctionCommand) { c.AutoExtend = true })
		alice, bob := f.bidder(), f.bidder()

		endAt := a.EndAt
		amount := int64(200)
		for i := range 4 {
			bidder := alice
			if i%2 == 1 {
				bidder = bob
			}
			out := f.bid(t, a.ID, bidder, amount, endAt.Add(-time.Minute))
			require.True(t, out.Extended)
			endAt = out.EndAt
			amount += 100
		}

		got := f.auction(t, a.ID)
		assert.Equal(t, 4, got.ExtensionCount)
		assert.Equal(t, a.EndAt.Add(4*policy.AutoExtendDuration), got.EndAt)
	})
}

func TestBlockBidder(t *testing.T) {
	ctx := context.Background()

	t.Run("blocking the leader promotes the runner-up", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)
		alice, bob := f.bidder(), f.bidder()
		f.bid(t, a.ID, alice, 500, minute(1))
		f.bid(t, a.ID, bob, 300, minute(2))

		got, err := f.svc.BlockBidder(ctx, auctions.BlockBidderCommand{AuctionID: a.ID, SellerID: f.seller, BidderID: alice, At: minute(3)})
		require.NoError(t, err)

		require.NotNil(t, got.CurrentWinnerID)
		assert.Equal(t, bob, *got.CurrentWinnerID)
		// max(start, 310+10) capped at bob's maximum
		assert.Equal(t, int64(300), got.CurrentPrice)
		assert.True(t, got.IsBlocked(alice))

		blocked := f.store.eventsOfType(auctions.EventBidderBlocked)
		require.Len(t, blocked, 1)
		assert.Equal(t, alice.String(), blocked[0]["bidder_id"])

		history, err := f.svc.GetBidHistory(ctx, a.ID)
		require.NoError(t, err)
		last := history[len(history)-1]
		assert.Equal(t, bob, last.BidderID)
		assert.True(t, history[0].BidderBlocked, "earlier entries of the blocked leader are flagged")
		assert.False(t, last.BidderBlocked)

		out := f.bid(t, a.ID, alice, 10_000, minute(4))
		assert.Equal(t, auctions.ReasonBidderBlocked, out.Reason)
	})

	t.Run("blocking the only bidder freezes the price and clears the winner", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)
		alice, bob := f.bidder(), f.bidder()
		f.bid(t, a.ID, alice, 500, minute(1))
		f.bid(t, a.ID, bob, 300, minute(2))
		_, err := f.svc.BlockBidder(ctx, auctions.BlockBidderCommand{AuctionID: a.ID, SellerID: f.seller, BidderID: alice})
		require.NoError(t, err)

		got, err := f.svc.BlockBidder(ctx, auctions.BlockBidderCommand{AuctionID: a.ID, SellerID: f.seller, BidderID: bob})
		require.NoError(t, err)

		assert.Nil(t, got.CurrentWinnerID)
		assert.Equal(t, int64(300), got.CurrentPrice)
	})

	t.Run("blocking a non-leader leaves the price alone", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)
		alice, bob := f.bidder(), f.bidder()
		f.bid(t, a.ID, alice, 500, minute(1))
		f.bid(t, a.ID, bob, 300, minute(2))

		got, err := f.svc.BlockBidder(ctx, auctions.BlockBidderCommand{AuctionID: a.ID, SellerID: f.seller, BidderID: bob})
		require.NoError(t, err)

		assert.Equal(t, alice, *got.CurrentWinnerID)
		assert.Equal(t, int64(310), got.CurrentPrice)
	})

	t.Run("blocking twice is a no-op", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)
		bob := f.bidder()
		cmd := auctions.BlockBidderCommand{AuctionID: a.ID, SellerID: f.seller, BidderID: bob}

		_, err := f.svc.BlockBidder(ctx, cmd)
		require.NoError(t, err)
		got, err := f.svc.BlockBidder(ctx, cmd)
		require.NoError(t, err)

		assert.Len(t, got.BlockedBidders, 1)
		assert.Len(t, f.store.eventsOfType(auctions.EventBidderBlocked), 1)
	})

	t.Run("errors", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)
		bob := f.bidder()

		_, err := f.svc.BlockBidder(ctx, auctions.BlockBidderCommand{AuctionID: a.ID, SellerID: bob, BidderID: bob})
		assert.ErrorIs(t, err, auctions.ErrNotSeller)

		_, err = f.svc.BlockBidder(ctx, auctions.BlockBidderCommand{AuctionID: a.ID, SellerID: f.seller, BidderID: f.seller})
		assert.ErrorIs(t, err, auctions.ErrCannotBlockSelf)

		_, err = f.svc.BlockBidder(ctx, auctions.BlockBidderCommand{AuctionID: uuid.New(), SellerID: f.seller, BidderID: bob})
		assert.ErrorIs(t, err, auctions.ErrAuctionNotFound)
	})
}

func TestBuyNow(t *testing.T) {
	ctx := context.Background()
	buyNow := int64(1000)
	withBuyNow := func(c *auctions.CreateAuctionCommand) { c.BuyNowPrice = &buyNow }

	t.Run("ends the auction at the buy now price", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t, withBuyNow)
		alice, bob := f.bidder(), f.bidder()
		f.bid(t, a.ID, alice, 300, minute(1))

		out, err := f.svc.BuyNow(ctx, auctions.BuyNowCommand{AuctionID: a.ID, BuyerID: bob, At: minute(2)})
		require.NoError(t, err)

		assert.Equal(t, auctions.OutcomeBidPlaced, out.Kind)
		assert.Equal(t, buyNow, out.CurrentPrice)
		assert.Equal(t, bob, *out.CurrentWinnerID)
		assert.Equal(t, auctions.AuctionStatusEnded, f.auction(t, a.ID).Status)
		assert.Equal(t, []string{
			auctions.EventBidPlaced,
			auctions.EventBidPlaced,
			auctions.EventBidOutbid,
			auctions.EventWinnerDetermined,
		}, f.store.eventTypes())

		settlement, err := f.svc.GetSettlement(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, bob, settlement.WinnerID)
		assert.Equal(t, buyNow, settlement.FinalPrice)
		assert.Equal(t, auctions.SettlementStatusPendingPayment, settlement.Status)
	})

	t.Run("unavailable without a buy now price", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)

		out, err := f.svc.BuyNow(ctx, auctions.BuyNowCommand{AuctionID: a.ID, BuyerID: f.bidder()})
		require.NoError(t, err)
		assert.ErrorIs(t, out.Err(), auctions.ErrBuyNowUnavailable)
	})

	t.Run("unavailable once bidding reaches the buy now price", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t, withBuyNow)
		f.bid(t, a.ID, f.bidder(), 2000, minute(1))
		f.bid(t, a.ID, f.bidder(), 1500, minute(2))

		out, err := f.svc.BuyNow(ctx, auctions.BuyNowCommand{AuctionID: a.ID, BuyerID: f.bidder(), At: minute(3)})
		require.NoError(t, err)
		assert.Equal(t, auctions.ReasonBuyNowUnavail, out.Reason)
	})

	t.Run("same eligibility rules as bidding", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t, withBuyNow)

		out, err := f.svc.BuyNow(ctx, auctions.BuyNowCommand{AuctionID: a.ID, BuyerID: f.seller})
		require.NoError(t, err)
		assert.Equal(t, auctions.ReasonSelfBid, out.Reason)
	})
}

func TestCancelAuction(t *testing.T) {
	ctx := context.Background()

	t.Run("seller cancels an auction without bids", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)

		got, err := f.svc.CancelAuction(ctx, auctions.CancelAuctionCommand{AuctionID: a.ID, SellerID: f.seller})
		require.NoError(t, err)

		assert.Equal(t, auctions.AuctionStatusCancelled, got.Status)
		assert.Equal(t, []string{auctions.EventAuctionCancelled}, f.store.eventTypes())

		_, err = f.svc.CancelAuction(ctx, auctions.CancelAuctionCommand{AuctionID: a.ID, SellerID: f.seller})
		assert.ErrorIs(t, err, auctions.ErrAuctionNotActive, "terminal states are final")
	})

	t.Run("cannot cancel once bids exist", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)
		f.bid(t, a.ID, f.bidder(), 200, minute(1))

		_, err := f.svc.CancelAuction(ctx, auctions.CancelAuctionCommand{AuctionID: a.ID, SellerID: f.seller})
		assert.ErrorIs(t, err, auctions.ErrAuctionHasBids)
	})

	t.Run("only the seller can cancel", func(t *testing.T) {
		f := newFixture(t)
		a := f.createAuction(t)

		_, err := f.svc.CancelAuction(ctx, auctions.CancelAuctionCommand{AuctionID: a.ID, SellerID: f.bidder()})
		assert.ErrorIs(t, err, auctions.ErrNotSeller)
	})
}

func TestSubmitProxyBid_ConcurrentBidders(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)

	const n = 20
	bidders := make([]uuid.UUID, n)
	for i := range bidders {
		bidders[i] = f.bidder()
	}

	var wg sync.WaitGroup
	for i, bidder := range bidders {
		wg.Add(1)
		go func(i int, bidder uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.SubmitProxyBid(context.Background(), auctions.PlaceProxyBidCommand{
				AuctionID: a.ID,
				BidderID:  bidder,
				MaxAmount: int64(1000 + i*100),
				At:        minute(1),
			})
			assert.NoError(t, err)
		}(i, bidder)
	}
	wg.Wait()

	got := f.auction(t, a.ID)
	require.NotNil(t, got.CurrentWinnerID)
	assert.Equal(t, bidders[n-1], *got.CurrentWinnerID, "highest maximum always wins")
	assert.LessOrEqual(t, got.CurrentPrice, int64(1000+(n-1)*100))

	history, err := f.svc.GetBidHistory(context.Background(), a.ID)
	require.NoError(t, err)
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i].Amount, history[i-1].Amount)
	}
}

func TestOutcome_Err(t *testing.T) {
	assert.NoError(t, auctions.BidOutcome{Kind: auctions.OutcomeBidPlaced}.Err())
	assert.NoError(t, auctions.BidOutcome{Kind: auctions.OutcomeMaxRaised}.Err())
	assert.ErrorIs(t, auctions.BidOutcome{Kind: auctions.OutcomeRejected, Reason: auctions.ReasonBidderBlocked}.Err(), auctions.ErrBidderBlocked)
}
