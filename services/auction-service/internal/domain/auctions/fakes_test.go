package auctions_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/hammer/pkg/events"
	"github.com/floroz/hammer/services/auction-service/internal/domain/auctions"
	"github.com/floroz/hammer/services/auction-service/internal/domain/ratings"
)

// memTx stands in for pgx.Tx. Locks taken through GetAuctionByIDForUpdate are held until
// Commit or Rollback, like a row lock.
type memTx struct {
	pgx.Tx
	mu       sync.Mutex
	unlocks  []func()
	finished bool
}

func (tx *memTx) hold(unlock func()) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.unlocks = append(tx.unlocks, unlock)
}

func (tx *memTx) release() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.finished {
		return
	}
	tx.finished = true
	for _, unlock := range tx.unlocks {
		unlock()
	}
}

func (tx *memTx) Commit(context.Context) error {
	tx.release()
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	tx.release()
	return nil
}

type proxyKey struct {
	auctionID uuid.UUID
	bidderID  uuid.UUID
}

// memStore implements every storage port of the controller plus the rating lookup
type memStore struct {
	mu          sync.Mutex
	auctions    map[uuid.UUID]*auctions.Auction
	rowLocks    map[uuid.UUID]*sync.Mutex
	proxies     map[proxyKey]*auctions.ProxyBid
	history     []*auctions.BidHistoryEntry
	settlements map[uuid.UUID]*auctions.Settlement
	events      []*events.OutboxEvent
	stats       map[uuid.UUID]ratings.Stats
	failSave    map[uuid.UUID]error
}

func newMemStore() *memStore {
	return &memStore{
		auctions:    make(map[uuid.UUID]*auctions.Auction),
		rowLocks:    make(map[uuid.UUID]*sync.Mutex),
		proxies:     make(map[proxyKey]*auctions.ProxyBid),
		settlements: make(map[uuid.UUID]*auctions.Settlement),
		stats:       make(map[uuid.UUID]ratings.Stats),
		failSave:    make(map[uuid.UUID]error),
	}
}

func (s *memStore) BeginTx(context.Context) (pgx.Tx, error) {
	return &memTx{}, nil
}

func (s *memStore) repositories() auctions.Repositories {
	return auctions.Repositories{
		Auctions:    s,
		ProxyBids:   s,
		History:     s,
		Settlements: s,
		Outbox:      s,
	}
}

func cloneAuction(a *auctions.Auction) *auctions.Auction {
	c := *a
	c.BlockedBidders = slices.Clone(a.BlockedBidders)
	if a.CurrentWinnerID != nil {
		w := *a.CurrentWinnerID
		c.CurrentWinnerID = &w
	}
	return &c
}

func (s *memStore) CreateAuction(_ context.Context, _ pgx.Tx, a *auctions.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = cloneAuction(a)
	s.rowLocks[a.ID] = &sync.Mutex{}
	return nil
}

func (s *memStore) GetAuctionByID(_ context.Context, id uuid.UUID) (*auctions.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, auctions.ErrAuctionNotFound
	}
	return cloneAuction(a), nil
}

func (s *memStore) GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*auctions.Auction, error) {
	s.mu.Lock()
	lock, ok := s.rowLocks[id]
	s.mu.Unlock()
	if !ok {
		return nil, auctions.ErrAuctionNotFound
	}
	lock.Lock()
	tx.(*memTx).hold(lock.Unlock)
	return s.GetAuctionByID(ctx, id)
}

func (s *memStore) SaveAuction(_ context.Context, _ pgx.Tx, a *auctions.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failSave[a.ID]; err != nil {
		return err
	}
	s.auctions[a.ID] = cloneAuction(a)
	return nil
}

func (s *memStore) BlockBidder(_ context.Context, _ pgx.Tx, auctionID, bidderID uuid.UUID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.auctions[auctionID]
	if !slices.Contains(a.BlockedBidders, bidderID) {
		a.BlockedBidders = append(a.BlockedBidders, bidderID)
	}
	return nil
}

func (s *memStore) ListExpiredAuctionIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, a := range s.auctions {
		if a.Status == auctions.AuctionStatusActive && !a.EndAt.After(now) {
			ids = append(ids, id)
		}
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *memStore) GetProxyBid(_ context.Context, _ pgx.Tx, auctionID, bidderID uuid.UUID) (*auctions.ProxyBid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.proxies[proxyKey{auctionID, bidderID}]
	if !ok {
		return nil, auctions.ErrProxyBidNotFound
	}
	c := *b
	return &c, nil
}

func (s *memStore) UpsertProxyBid(_ context.Context, _ pgx.Tx, bid *auctions.ProxyBid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *bid
	s.proxies[proxyKey{bid.AuctionID, bid.BidderID}] = &c
	return nil
}

func (s *memStore) ListLiveProxyBids(_ context.Context, _ pgx.Tx, auctionID uuid.UUID, exclude []uuid.UUID) ([]*auctions.ProxyBid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var live []*auctions.ProxyBid
	for k, b := range s.proxies {
		if k.auctionID != auctionID || slices.Contains(exclude, k.bidderID) {
			continue
		}
		c := *b
		live = append(live, &c)
	}
	return live, nil
}

func (s *memStore) AppendBidHistory(_ context.Context, _ pgx.Tx, entry *auctions.BidHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *entry
	s.history = append(s.history, &c)
	return nil
}

func (s *memStore) ListBidHistory(_ context.Context, auctionID uuid.UUID) ([]*auctions.BidHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auctions.BidHistoryEntry
	for _, e := range s.history {
		if e.AuctionID == auctionID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) CountBidHistory(ctx context.Context, _ pgx.Tx, auctionID uuid.UUID) (int, error) {
	entries, err := s.ListBidHistory(ctx, auctionID)
	return len(entries), err
}

func (s *memStore) CreateSettlement(_ context.Context, _ pgx.Tx, settlement *auctions.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.settlements[settlement.AuctionID]; exists {
		return errors.New("duplicate settlement")
	}
	c := *settlement
	s.settlements[settlement.AuctionID] = &c
	return nil
}

func (s *memStore) GetSettlementByAuctionID(_ context.Context, auctionID uuid.UUID) (*auctions.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settlements[auctionID]
	if !ok {
		return nil, auctions.ErrSettlementNotFound
	}
	c := *st
	return &c, nil
}

func (s *memStore) SaveEvent(_ context.Context, _ pgx.Tx, event *events.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memStore) GetRatingStats(_ context.Context, userID uuid.UUID) (ratings.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[userID]
	if !ok {
		return ratings.Stats{}, ratings.ErrUserNotFound
	}
	return stats, nil
}

func (s *memStore) addUser(stats ratings.Stats) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.stats[id] = stats
	return id
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

func (s *memStore) eventsOfType(eventType string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, e := range s.events {
		if e.EventType != eventType {
			continue
		}
		fields, err := events.DecodePayload(e.Payload)
		if err != nil {
			panic(err)
		}
		out = append(out, fields)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
