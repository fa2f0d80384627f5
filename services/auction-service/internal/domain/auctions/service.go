package auctions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/hammer/pkg/database"
	"github.com/floroz/hammer/pkg/events"
	"github.com/floroz/hammer/services/auction-service/internal/domain/proxy"
	"github.com/floroz/hammer/services/auction-service/internal/domain/ratings"
)

const defaultCloseBatchSize = 100

// Service is the bid intake and auction lifecycle controller.
// Every mutation locks the auction row first, so at most one resolution runs per auction.
type Service struct {
	txManager      database.TransactionManager
	repos          Repositories
	ratings        RatingLookup
	policy         Policy
	logger         *slog.Logger
	now            func() time.Time
	closeBatchSize int
}

// Option customises a Service
type Option func(*Service)

// WithClock overrides the clock used when a command carries no timestamp
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCloseBatchSize bounds how many expired auctions one sweep picks up
func WithCloseBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.closeBatchSize = n
		}
	}
}

// NewService creates a new auction service
func NewService(
	txManager database.TransactionManager,
	repos Repositories,
	ratingLookup RatingLookup,
	policy Policy,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		txManager:      txManager,
		repos:          repos,
		ratings:        ratingLookup,
		policy:         policy,
		logger:         logger,
		now:            time.Now,
		closeBatchSize: defaultCloseBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the bidding policy the service was built with
func (s *Service) Policy() Policy {
	return s.policy
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// CreateAuction lists a new active auction with no bids
func (s *Service) CreateAuction(ctx context.Context, cmd CreateAuctionCommand) (*Auction, error) {
	now := s.now()
	if err := validateCreate(cmd, now); err != nil {
		return nil, err
	}

	auction := &Auction{
		ID:                  uuid.New(),
		SellerID:            cmd.SellerID,
		Title:               strings.TrimSpace(cmd.Title),
		StartPrice:          cmd.StartPrice,
		StepPrice:           cmd.StepPrice,
		BuyNowPrice:         cmd.BuyNowPrice,
		Status:              AuctionStatusActive,
		EndAt:               cmd.EndAt,
		AutoExtend:          cmd.AutoExtend,
		AllowUnratedBidders: cmd.AllowUnratedBidders,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := s.repos.Auctions.CreateAuction(ctx, tx, auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return auction, nil
}

func validateCreate(cmd CreateAuctionCommand, now time.Time) error {
	switch {
	case strings.TrimSpace(cmd.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidAuction)
	case cmd.StartPrice < 0:
		return fmt.Errorf("%w: start price must not be negative", ErrInvalidAuction)
	case cmd.StepPrice <= 0:
		return fmt.Errorf("%w: step price must be positive", ErrInvalidAuction)
	case cmd.StartPrice > MaxAmount || cmd.StepPrice > MaxAmount || (cmd.BuyNowPrice != nil && *cmd.BuyNowPrice > MaxAmount):
		return fmt.Errorf("%w: amounts must not exceed %d", ErrInvalidAuction, MaxAmount)
	case cmd.BuyNowPrice != nil && *cmd.BuyNowPrice < cmd.StartPrice:
		return fmt.Errorf("%w: buy now price must be at least the start price", ErrInvalidAuction)
	case !cmd.EndAt.After(now):
		return fmt.Errorf("%w: end time must be in the future", ErrInvalidAuction)
	}
	return nil
}

// SubmitProxyBid records or raises a bidder's maximum and re-resolves the auction.
// Rejections are reported in the outcome; the error is reserved for storage faults.
func (s *Service) SubmitProxyBid(ctx context.Context, cmd PlaceProxyBidCommand) (BidOutcome, error) {
	if cmd.MaxAmount <= 0 || cmd.MaxAmount > MaxAmount {
		return rejected(cmd.AuctionID, ReasonInvalidAmount), nil
	}
	at := s.at(cmd.At)

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return BidOutcome{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repos.Auctions.GetAuctionByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		if errors.Is(err, ErrAuctionNotFound) {
			return rejected(cmd.AuctionID, ReasonAuctionNotFound), nil
		}
		return BidOutcome{}, fmt.Errorf("failed to lock auction: %w", err)
	}

	reason, err := s.checkBidder(ctx, auction, cmd.BidderID, at)
	if err != nil {
		return BidOutcome{}, err
	}
	if reason != "" {
		return rejected(auction.ID, reason), nil
	}

	if cmd.MaxAmount < auction.MinAllowedMax() {
		return rejected(auction.ID, ReasonInvalidAmount), nil
	}

	existing, err := s.repos.ProxyBids.GetProxyBid(ctx, tx, auction.ID, cmd.BidderID)
	if err != nil && !errors.Is(err, ErrProxyBidNotFound) {
		return BidOutcome{}, fmt.Errorf("failed to load proxy bid: %w", err)
	}
	// A standing maximum can only go up.
	if existing != nil && cmd.MaxAmount <= existing.MaxAmount {
		return rejected(auction.ID, ReasonInvalidAmount), nil
	}

	bid := &ProxyBid{
		AuctionID: auction.ID,
		BidderID:  cmd.BidderID,
		MaxAmount: cmd.MaxAmount,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if existing != nil {
		bid.CreatedAt = existing.CreatedAt
	}
	if err := s.repos.ProxyBids.UpsertProxyBid(ctx, tx, bid); err != nil {
		return BidOutcome{}, fmt.Errorf("failed to upsert proxy bid: %w", err)
	}

	res, err := s.resolve(ctx, tx, auction)
	if err != nil {
		return BidOutcome{}, err
	}
	if res.HasWinner() && res.Price < auction.CurrentPrice {
		res.Price = auction.CurrentPrice
	}

	previousWinner := auction.CurrentWinnerID
	priceChanged, winnerChanged := auction.applyResolution(res)

	var pending []*events.OutboxEvent
	kind := OutcomeMaxRaised
	switch {
	case priceChanged || winnerChanged:
		kind = OutcomeBidPlaced
		if err := s.appendHistory(ctx, tx, auction, at); err != nil {
			return BidOutcome{}, err
		}
		placed, err := newBidPlacedEvent(auction, at)
		if err != nil {
			return BidOutcome{}, err
		}
		pending = append(pending, placed)
		if winnerChanged && previousWinner != nil {
			outbid, err := newOutbidEvent(auction, *previousWinner, at)
			if err != nil {
				return BidOutcome{}, err
			}
			pending = append(pending, outbid)
		}
	case auction.IsLeadingBidder(cmd.BidderID):
		// The leader raised their own cap with headroom: public log only, no notification.
		if err := s.appendHistory(ctx, tx, auction, at); err != nil {
			return BidOutcome{}, err
		}
	}

	extended := auction.maybeExtend(at, s.policy)
	auction.UpdatedAt = at

	if err := s.repos.Auctions.SaveAuction(ctx, tx, auction); err != nil {
		return BidOutcome{}, fmt.Errorf("failed to save auction: %w", err)
	}
	if err := s.saveEvents(ctx, tx, pending); err != nil {
		return BidOutcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return BidOutcome{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return accepted(kind, auction, extended), nil
}

// BuyNow ends the auction immediately at its buy-now price with the buyer as winner
func (s *Service) BuyNow(ctx context.Context, cmd BuyNowCommand) (BidOutcome, error) {
	at := s.at(cmd.At)

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return BidOutcome{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repos.Auctions.GetAuctionByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		if errors.Is(err, ErrAuctionNotFound) {
			return rejected(cmd.AuctionID, ReasonAuctionNotFound), nil
		}
		return BidOutcome{}, fmt.Errorf("failed to lock auction: %w", err)
	}

	reason, err := s.checkBidder(ctx, auction, cmd.BuyerID, at)
	if err != nil {
		return BidOutcome{}, err
	}
	if reason != "" {
		return rejected(auction.ID, reason), nil
	}
	if auction.BuyNowPrice == nil || auction.CurrentPrice >= *auction.BuyNowPrice {
		return rejected(auction.ID, ReasonBuyNowUnavail), nil
	}
	price := *auction.BuyNowPrice

	existing, err := s.repos.ProxyBids.GetProxyBid(ctx, tx, auction.ID, cmd.BuyerID)
	if err != nil && !errors.Is(err, ErrProxyBidNotFound) {
		return BidOutcome{}, fmt.Errorf("failed to load proxy bid: %w", err)
	}
	bid := &ProxyBid{AuctionID: auction.ID, BidderID: cmd.BuyerID, MaxAmount: price, CreatedAt: at, UpdatedAt: at}
	if existing != nil {
		bid.CreatedAt = existing.CreatedAt
		bid.MaxAmount = max(existing.MaxAmount, price)
	}
	if err := s.repos.ProxyBids.UpsertProxyBid(ctx, tx, bid); err != nil {
		return BidOutcome{}, fmt.Errorf("failed to upsert proxy bid: %w", err)
	}

	previousWinner := auction.CurrentWinnerID
	buyer := cmd.BuyerID
	auction.CurrentPrice = price
	auction.CurrentWinnerID = &buyer
	auction.Status = AuctionStatusEnded
	auction.UpdatedAt = at

	if err := s.appendHistory(ctx, tx, auction, at); err != nil {
		return BidOutcome{}, err
	}

	pending := make([]*events.OutboxEvent, 0, 3)
	placed, err := newBidPlacedEvent(auction, at)
	if err != nil {
		return BidOutcome{}, err
	}
	pending = append(pending, placed)
	if previousWinner != nil && *previousWinner != buyer {
		outbid, err := newOutbidEvent(auction, *previousWinner, at)
		if err != nil {
			return BidOutcome{}, err
		}
		pending = append(pending, outbid)
	}

	if err := s.repos.Auctions.SaveAuction(ctx, tx, auction); err != nil {
		return BidOutcome{}, fmt.Errorf("failed to save auction: %w", err)
	}
	won, err := s.settle(ctx, tx, auction, at)
	if err != nil {
		return BidOutcome{}, err
	}
	pending = append(pending, won)
	if err := s.saveEvents(ctx, tx, pending); err != nil {
		return BidOutcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return BidOutcome{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return accepted(OutcomeBidPlaced, auction, false), nil
}

// BlockBidder excludes a bidder from the seller's auction.
// If the bidder was leading, the auction is re-resolved over the remaining candidates
// and the price may drop. Blocking an already blocked bidder is a no-op.
func (s *Service) BlockBidder(ctx context.Context, cmd BlockBidderCommand) (*Auction, error) {
	at := s.at(cmd.At)

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repos.Auctions.GetAuctionByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}
	if !auction.IsOwnedBy(cmd.SellerID) {
		return nil, ErrNotSeller
	}
	if cmd.BidderID == auction.SellerID {
		return nil, ErrCannotBlockSelf
	}
	if auction.Status != AuctionStatusActive {
		return nil, ErrAuctionNotActive
	}
	if auction.IsBlocked(cmd.BidderID) {
		return auction, nil
	}

	if err := s.repos.Auctions.BlockBidder(ctx, tx, auction.ID, cmd.BidderID, at); err != nil {
		return nil, fmt.Errorf("failed to block bidder: %w", err)
	}
	auction.BlockedBidders = append(auction.BlockedBidders, cmd.BidderID)

	if auction.IsLeadingBidder(cmd.BidderID) {
		res, err := s.resolve(ctx, tx, auction)
		if err != nil {
			return nil, err
		}
		auction.applyResolution(res)
		if auction.CurrentWinnerID != nil {
			if err := s.appendHistory(ctx, tx, auction, at); err != nil {
				return nil, err
			}
		}
	}
	auction.UpdatedAt = at

	blocked, err := newBidderBlockedEvent(auction, cmd.BidderID, at)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Auctions.SaveAuction(ctx, tx, auction); err != nil {
		return nil, fmt.Errorf("failed to save auction: %w", err)
	}
	if err := s.saveEvents(ctx, tx, []*events.OutboxEvent{blocked}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("bidder blocked", "auction_id", auction.ID, "bidder_id", cmd.BidderID)
	return auction, nil
}

// CancelAuction withdraws an active auction that has not received any bid
func (s *Service) CancelAuction(ctx context.Context, cmd CancelAuctionCommand) (*Auction, error) {
	at := s.at(cmd.At)

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repos.Auctions.GetAuctionByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}
	if !auction.IsOwnedBy(cmd.SellerID) {
		return nil, ErrNotSeller
	}
	if auction.Status != AuctionStatusActive {
		return nil, ErrAuctionNotActive
	}

	count, err := s.repos.History.CountBidHistory(ctx, tx, auction.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count bids: %w", err)
	}
	if !auction.CanBeCancelled(count > 0) {
		return nil, ErrAuctionHasBids
	}

	auction.Status = AuctionStatusCancelled
	auction.UpdatedAt = at

	cancelled, err := newCancelledEvent(auction, at)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Auctions.SaveAuction(ctx, tx, auction); err != nil {
		return nil, fmt.Errorf("failed to save auction: %w", err)
	}
	if err := s.saveEvents(ctx, tx, []*events.OutboxEvent{cancelled}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return auction, nil
}

// GetAuction returns the public view of an auction
func (s *Service) GetAuction(ctx context.Context, auctionID uuid.UUID) (*Auction, error) {
	return s.repos.Auctions.GetAuctionByID(ctx, auctionID)
}

// BidHistoryItem is a history entry annotated for display
type BidHistoryItem struct {
	BidHistoryEntry
	BidderBlocked bool
}

// GetBidHistory returns the public price log, oldest first
func (s *Service) GetBidHistory(ctx context.Context, auctionID uuid.UUID) ([]BidHistoryItem, error) {
	auction, err := s.repos.Auctions.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repos.History.ListBidHistory(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bid history: %w", err)
	}

	items := make([]BidHistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, BidHistoryItem{BidHistoryEntry: *e, BidderBlocked: auction.IsBlocked(e.BidderID)})
	}
	return items, nil
}

// GetMyProxyBid returns the caller's own standing maximum. Nobody else's maximum is ever exposed.
func (s *Service) GetMyProxyBid(ctx context.Context, auctionID, bidderID uuid.UUID) (*ProxyBid, error) {
	return s.repos.ProxyBids.GetProxyBid(ctx, nil, auctionID, bidderID)
}

// GetSettlement returns the settlement opened when the auction ended with a winner
func (s *Service) GetSettlement(ctx context.Context, auctionID uuid.UUID) (*Settlement, error) {
	return s.repos.Settlements.GetSettlementByAuctionID(ctx, auctionID)
}

// checkBidder runs the auction and bidder checks of a bid attempt, in order.
func (s *Service) checkBidder(ctx context.Context, a *Auction, bidderID uuid.UUID, at time.Time) (RejectionReason, error) {
	if a.Status != AuctionStatusActive {
		return ReasonAuctionNotActive, nil
	}
	if !at.Before(a.EndAt) {
		return ReasonAuctionExpired, nil
	}
	if a.IsOwnedBy(bidderID) {
		return ReasonSelfBid, nil
	}
	if a.IsBlocked(bidderID) {
		return ReasonBidderBlocked, nil
	}

	stats, err := s.ratings.GetRatingStats(ctx, bidderID)
	if err != nil {
		if errors.Is(err, ratings.ErrUserNotFound) {
			return ReasonBidderNotFound, nil
		}
		return "", fmt.Errorf("failed to load rating stats: %w", err)
	}
	if !s.eligible(a, stats) {
		return ReasonIneligible, nil
	}
	return "", nil
}

func (s *Service) eligible(a *Auction, stats ratings.Stats) bool {
	if stats.Total == 0 {
		return a.AllowUnratedBidders
	}
	return stats.Percent >= s.policy.MinRatingPercentForBid
}

// resolve runs the resolver over every proxy bid not owned by a blocked bidder
func (s *Service) resolve(ctx context.Context, tx pgx.Tx, a *Auction) (proxy.Resolution, error) {
	live, err := s.repos.ProxyBids.ListLiveProxyBids(ctx, tx, a.ID, a.BlockedBidders)
	if err != nil {
		return proxy.Resolution{}, fmt.Errorf("failed to list proxy bids: %w", err)
	}

	candidates := make([]proxy.Bid, 0, len(live))
	for _, b := range live {
		// Ties go to the bidder whose proxy bid was placed first; raises keep CreatedAt.
		candidates = append(candidates, proxy.Bid{BidderID: b.BidderID, MaxAmount: b.MaxAmount, CreatedAt: b.CreatedAt})
	}
	return proxy.Resolve(a.resolverState(), candidates), nil
}

func (s *Service) appendHistory(ctx context.Context, tx pgx.Tx, a *Auction, at time.Time) error {
	entry := &BidHistoryEntry{
		ID:        uuid.New(),
		AuctionID: a.ID,
		BidderID:  *a.CurrentWinnerID,
		Amount:    a.CurrentPrice,
		CreatedAt: at,
	}
	if err := s.repos.History.AppendBidHistory(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to append bid history: %w", err)
	}
	return nil
}

// settle opens the seller/winner settlement and returns the winner event to store with it
func (s *Service) settle(ctx context.Context, tx pgx.Tx, a *Auction, at time.Time) (*events.OutboxEvent, error) {
	settlement := &Settlement{
		ID:         uuid.New(),
		AuctionID:  a.ID,
		SellerID:   a.SellerID,
		WinnerID:   *a.CurrentWinnerID,
		FinalPrice: a.CurrentPrice,
		Status:     SettlementStatusPendingPayment,
		CreatedAt:  at,
	}
	if err := s.repos.Settlements.CreateSettlement(ctx, tx, settlement); err != nil {
		return nil, fmt.Errorf("failed to create settlement: %w", err)
	}
	return newWinnerDeterminedEvent(a, at)
}

func (s *Service) saveEvents(ctx context.Context, tx pgx.Tx, pending []*events.OutboxEvent) error {
	for _, event := range pending {
		if err := s.repos.Outbox.SaveEvent(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to save outbox event %s: %w", event.EventType, err)
		}
	}
	return nil
}
