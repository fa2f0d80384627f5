package auctions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// CloseReport summarises one closing sweep
type CloseReport struct {
	Closed     int
	WithWinner int
	NoBids     int
	Skipped    int
	Failed     int
}

// CloseExpiredAuctions ends every active auction whose end time is at or before now.
// Each auction is closed in its own transaction under the same row lock bids take, so a bid
// accepted before the end time is fully applied first. A failure on one auction is logged
// and the sweep continues. Calling it again on already closed auctions emits nothing.
func (s *Service) CloseExpiredAuctions(ctx context.Context, now time.Time) (CloseReport, error) {
	var report CloseReport

	ids, err := s.repos.Auctions.ListExpiredAuctionIDs(ctx, now, s.closeBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list expired auctions: %w", err)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		result, err := s.closeAuction(ctx, id, now)
		if err != nil {
			report.Failed++
			s.logger.Error("failed to close auction", "auction_id", id, "error", err)
			continue
		}

		switch result {
		case closedWithWinner:
			report.Closed++
			report.WithWinner++
		case closedNoBids:
			report.Closed++
			report.NoBids++
		default:
			report.Skipped++
		}
	}

	if report.Closed > 0 || report.Failed > 0 {
		s.logger.Info("closing sweep finished",
			"closed", report.Closed,
			"with_winner", report.WithWinner,
			"no_bids", report.NoBids,
			"failed", report.Failed,
		)
	}
	return report, nil
}

type closeResult int

const (
	closeSkipped closeResult = iota
	closedWithWinner
	closedNoBids
)

func (s *Service) closeAuction(ctx context.Context, auctionID uuid.UUID, now time.Time) (closeResult, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return closeSkipped, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repos.Auctions.GetAuctionByIDForUpdate(ctx, tx, auctionID)
	if err != nil {
		return closeSkipped, fmt.Errorf("failed to lock auction: %w", err)
	}

	// Re-check under the lock: another sweep may have closed it, or a late bid extended it.
	if auction.Status != AuctionStatusActive || auction.EndAt.After(now) {
		return closeSkipped, nil
	}

	auction.Status = AuctionStatusEnded
	auction.UpdatedAt = now

	if err := s.repos.Auctions.SaveAuction(ctx, tx, auction); err != nil {
		return closeSkipped, fmt.Errorf("failed to save auction: %w", err)
	}

	result := closedNoBids
	if auction.CurrentWinnerID != nil {
		result = closedWithWinner
		won, err := s.settle(ctx, tx, auction, now)
		if err != nil {
			return closeSkipped, err
		}
		if err := s.repos.Outbox.SaveEvent(ctx, tx, won); err != nil {
			return closeSkipped, fmt.Errorf("failed to save outbox event: %w", err)
		}
	} else {
		noBids, err := newNoBidsEvent(auction, now)
		if err != nil {
			return closeSkipped, err
		}
		if err := s.repos.Outbox.SaveEvent(ctx, tx, noBids); err != nil {
			return closeSkipped, fmt.Errorf("failed to save outbox event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return closeSkipped, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// Closer is the closing primitive the sweeper drives
type Closer interface {
	CloseExpiredAuctions(ctx context.Context, now time.Time) (CloseReport, error)
}

// SweepLock keeps concurrent workers from sweeping at the same time.
// Correctness does not depend on it; the row lock and status guard already make closing idempotent.
type SweepLock interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// NoopSweepLock always grants the lock
type NoopSweepLock struct{}

func (NoopSweepLock) TryAcquire(context.Context, time.Duration) (bool, error) { return true, nil }
func (NoopSweepLock) Release(context.Context) error                          { return nil }

// Sweeper invokes the closer on a fixed interval until its context is cancelled
type Sweeper struct {
	closer   Closer
	lock     SweepLock
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewSweeper creates a sweeper. A nil lock behaves like NoopSweepLock.
func NewSweeper(closer Closer, lock SweepLock, interval time.Duration, logger *slog.Logger) *Sweeper {
	if lock == nil {
		lock = NoopSweepLock{}
	}
	return &Sweeper{
		closer:   closer,
		lock:     lock,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Run starts the sweeper loop
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Auction close sweeper started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Auction close sweeper stopping")
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Error("Closing sweep failed", "error", err)
			}
		}
	}
}

// Tick runs a single sweep if the lock can be taken
func (w *Sweeper) Tick(ctx context.Context) error {
	acquired, err := w.lock.TryAcquire(ctx, w.interval*5)
	if err != nil {
		return fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := w.lock.Release(ctx); err != nil {
			w.logger.Warn("failed to release sweep lock", "error", err)
		}
	}()

	_, err = w.closer.CloseExpiredAuctions(ctx, w.now())
	return err
}
