package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	pkgdb "github.com/floroz/hammer/pkg/database"
	pkgevents "github.com/floroz/hammer/pkg/events"
	"github.com/floroz/hammer/services/auction-service/internal/adapters/database"
)

// Exchange is the topic exchange auction events are published to
const Exchange = "auction.events"

// ProducerConfig tunes the outbox relay
type ProducerConfig struct {
	BatchSize   int
	Interval    time.Duration
	LockTimeout time.Duration
}

// AuctionEventsProducer relays auction events from the outbox to RabbitMQ
type AuctionEventsProducer struct {
	relay     *pkgevents.OutboxRelay
	publisher *pkgevents.RabbitMQPublisher
}

// NewAuctionEventsProducer creates a new producer
func NewAuctionEventsProducer(pool *pgxpool.Pool, conn *amqp.Connection, cfg ProducerConfig, logger *slog.Logger) (*AuctionEventsProducer, error) {
	publisher, err := pkgevents.NewRabbitMQPublisher(conn, Exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	relay := pkgevents.NewOutboxRelay(
		database.NewPostgresOutboxRepository(pool),
		publisher,
		pkgdb.NewPostgresTransactionManager(pool, cfg.LockTimeout),
		cfg.BatchSize,
		cfg.Interval,
		Exchange,
		logger,
	)

	return &AuctionEventsProducer{
		relay:     relay,
		publisher: publisher,
	}, nil
}

// Run starts the relay loop
func (p *AuctionEventsProducer) Run(ctx context.Context) error {
	return p.relay.Run(ctx)
}

// Flush publishes one batch immediately
func (p *AuctionEventsProducer) Flush(ctx context.Context) (int, error) {
	return p.relay.ProcessBatch(ctx)
}

// Close closes the publisher channel
func (p *AuctionEventsProducer) Close() error {
	return p.publisher.Close()
}
