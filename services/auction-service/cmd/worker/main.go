package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	pkgdb "github.com/floroz/hammer/pkg/database"
	"github.com/floroz/hammer/services/auction-service/internal/adapters/cache"
	"github.com/floroz/hammer/services/auction-service/internal/adapters/database"
	"github.com/floroz/hammer/services/auction-service/internal/adapters/events"
	"github.com/floroz/hammer/services/auction-service/internal/config"
	"github.com/floroz/hammer/services/auction-service/internal/domain/auctions"
	"github.com/floroz/hammer/services/auction-service/internal/domain/notifications"
	"github.com/floroz/hammer/services/auction-service/internal/domain/ratings"
)

// The worker closes expired auctions, relays the outbox and turns events into notifications.
func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Initialize Postgres Connection Pool
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		logger.Error("Unable to ping database", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. Connect to RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()
	logger.Info("RabbitMQ Connected")

	// 3. Redis guards the close sweep across worker replicas
	var sweepLock auctions.SweepLock = auctions.NoopSweepLock{}
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		sweepLock = cache.NewRedisSweepLock(rdb)
		logger.Info("Redis Connected")
	}

	// 4. Initialize Services
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.DBLockTimeout)
	settlementRepo := database.NewPostgresSettlementRepository(pool)
	ratingService := ratings.NewService(database.NewPostgresRatingRepository(pool), settlementRepo, nil, cfg.RatingCacheTTL, logger)
	auctionService := auctions.NewService(
		txManager,
		auctions.Repositories{
			Auctions:    database.NewPostgresAuctionRepository(pool),
			ProxyBids:   database.NewPostgresProxyBidRepository(pool),
			History:     database.NewPostgresBidHistoryRepository(pool),
			Settlements: settlementRepo,
			Outbox:      database.NewPostgresOutboxRepository(pool),
		},
		ratingService,
		cfg.Policy(),
		logger,
		auctions.WithCloseBatchSize(cfg.CloseBatchSize),
	)
	notificationService := notifications.NewService(
		database.NewPostgresProcessedEventRepository(),
		txManager,
		notifications.NewLogDispatcher(logger),
	)

	// 5. Initialize Producer and Consumer
	producer, err := events.NewAuctionEventsProducer(pool, amqpConn, events.ProducerConfig{
		BatchSize:   cfg.OutboxBatchSize,
		Interval:    cfg.OutboxInterval,
		LockTimeout: cfg.DBLockTimeout,
	}, logger)
	if err != nil {
		logger.Error("Failed to create producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	consumer := events.NewNotificationConsumer(amqpConn, notificationService, logger)
	sweeper := auctions.NewSweeper(auctionService, sweepLock, cfg.CloseSweepInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting Auction Events Producer...")
		return producer.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Starting Close Sweeper...", "interval", cfg.CloseSweepInterval)
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting Notification Consumer...")
		return consumer.Run(gctx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}
