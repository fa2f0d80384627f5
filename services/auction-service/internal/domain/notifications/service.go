package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/hammer/pkg/database"
)

// Repository tracks which broker messages have already been handled
type Repository interface {
	IsEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (bool, error)
	MarkEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error
}

// Dispatcher delivers a notification to its recipient
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Service turns auction events into notifications, at most once per event id
type Service struct {
	repo       Repository
	txManager  database.TransactionManager
	dispatcher Dispatcher
}

func NewService(repo Repository, txManager database.TransactionManager, dispatcher Dispatcher) *Service {
	return &Service{
		repo:       repo,
		txManager:  txManager,
		dispatcher: dispatcher,
	}
}

// Process handles one event. Redelivered events are acknowledged without dispatching again.
func (s *Service) Process(ctx context.Context, event Event) error {
	notifications, err := Route(event)
	if err != nil {
		return err
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	processed, err := s.repo.IsEventProcessed(ctx, tx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to check idempotency: %w", err)
	}
	if processed {
		return nil
	}

	for _, n := range notifications {
		if err := s.dispatcher.Dispatch(ctx, n); err != nil {
			return fmt.Errorf("failed to dispatch %s to %s: %w", n.Kind, n.RecipientID, err)
		}
	}

	if err := s.repo.MarkEventProcessed(ctx, tx, event.ID); err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LogDispatcher writes notifications to the structured log
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	d.logger.Info("notification",
		"kind", n.Kind,
		"recipient_id", n.RecipientID,
		"auction_id", n.AuctionID,
		"amount", n.Amount,
		"event_id", n.EventID,
	)
	return nil
}
