package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/hammer/pkg/database"
)

// OutboxStatus defines the status of an event in the outbox
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxEvent is an event stored in the same transaction as the state change that produced it.
// The relay publishes it later with EventType as the routing key and ID as the message id.
type OutboxEvent struct {
	ID          uuid.UUID    `db:"id"`
	EventType   string       `db:"event_type"`
	AggregateID uuid.UUID    `db:"aggregate_id"`
	Payload     []byte       `db:"payload"`
	Status      OutboxStatus `db:"status"`
	CreatedAt   time.Time    `db:"created_at"`
	ProcessedAt *time.Time   `db:"processed_at"`
}

// NewOutboxEvent builds a pending event for the given aggregate
func NewOutboxEvent(eventType string, aggregateID uuid.UUID, payload []byte, at time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		Status:      OutboxStatusPending,
		CreatedAt:   at,
	}
}

// OutboxRepository defines the interface the relay needs from the outbox table
type OutboxRepository interface {
	GetPendingEvents(ctx context.Context, tx pgx.Tx, limit int) ([]*OutboxEvent, error)
	UpdateEventStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status OutboxStatus) error
}

// EventPublisher defines the interface for publishing events to a broker
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey, messageID string, body []byte) error
}

// OutboxRelay polls the database for pending events and publishes them
type OutboxRelay struct {
	outboxRepo OutboxRepository
	publisher  EventPublisher
	txManager  database.TransactionManager
	batchSize  int
	interval   time.Duration
	exchange   string
	logger     *slog.Logger
}

// NewOutboxRelay creates a new outbox relay
func NewOutboxRelay(
	outboxRepo OutboxRepository,
	publisher EventPublisher,
	txManager database.TransactionManager,
	batchSize int,
	interval time.Duration,
	exchange string,
	logger *slog.Logger,
) *OutboxRelay {
	return &OutboxRelay{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		txManager:  txManager,
		batchSize:  batchSize,
		interval:   interval,
		exchange:   exchange,
		logger:     logger,
	}
}

// Run starts the polling loop. It returns nil when ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if _, err := r.ProcessBatch(ctx); err != nil {
		r.logger.Error("Error processing outbox batch", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil {
				r.logger.Error("Error processing outbox batch", "error", err)
			}
		}
	}
}

// ProcessBatch publishes one batch of pending events and returns how many were published.
// A publish failure rolls the whole batch back so the events stay pending and are retried.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	tx, err := r.txManager.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// FOR UPDATE SKIP LOCKED lets several relays run side by side
	events, err := r.outboxRepo.GetPendingEvents(ctx, tx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending events: %w", err)
	}

	if len(events) == 0 {
		return 0, nil
	}

	r.logger.Info("Processing outbox events", "count", len(events))

	for _, event := range events {
		err := r.publisher.Publish(ctx, r.exchange, event.EventType, event.ID.String(), event.Payload)
		if err != nil {
			return 0, fmt.Errorf("failed to publish event %s: %w", event.ID, err)
		}

		err = r.outboxRepo.UpdateEventStatus(ctx, tx, event.ID, OutboxStatusPublished)
		if err != nil {
			return 0, fmt.Errorf("failed to update event status %s: %w", event.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit outbox batch: %w", err)
	}

	return len(events), nil
}
