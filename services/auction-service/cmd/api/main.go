package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/floroz/hammer/pkg/auth"
	pkgdb "github.com/floroz/hammer/pkg/database"
	"github.com/floroz/hammer/services/auction-service/internal/adapters/api"
	"github.com/floroz/hammer/services/auction-service/internal/adapters/cache"
	"github.com/floroz/hammer/services/auction-service/internal/adapters/database"
	"github.com/floroz/hammer/services/auction-service/internal/adapters/events"
	"github.com/floroz/hammer/services/auction-service/internal/config"
	"github.com/floroz/hammer/services/auction-service/internal/domain/auctions"
	"github.com/floroz/hammer/services/auction-service/internal/domain/ratings"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

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

	// 3. Redis backs the rating cache when configured
	var statsCache ratings.StatsCache
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis connection failed, rating cache disabled", "error", err)
		} else {
			statsCache = cache.NewRedisRatingCache(rdb)
			logger.Info("Redis Connected")
		}
	}

	// 4. Token validation needs only the public key
	publicKey, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		logger.Error("Failed to read JWT public key", "path", cfg.JWTPublicKeyPath, "error", err)
		os.Exit(1)
	}
	signer, err := auth.NewSignerFromPublicKey(publicKey, cfg.JWTIssuer)
	if err != nil {
		logger.Error("Failed to create token signer", "error", err)
		os.Exit(1)
	}

	// 5. Initialize Repositories (Infrastructure Layer)
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.DBLockTimeout)
	settlementRepo := database.NewPostgresSettlementRepository(pool)
	repos := auctions.Repositories{
		Auctions:    database.NewPostgresAuctionRepository(pool),
		ProxyBids:   database.NewPostgresProxyBidRepository(pool),
		History:     database.NewPostgresBidHistoryRepository(pool),
		Settlements: settlementRepo,
		Outbox:      database.NewPostgresOutboxRepository(pool),
	}

	// 6. Initialize Services (Domain Layer)
	ratingService := ratings.NewService(
		database.NewPostgresRatingRepository(pool),
		settlementRepo,
		statsCache,
		cfg.RatingCacheTTL,
		logger,
	)
	auctionService := auctions.NewService(txManager, repos, ratingService, cfg.Policy(), logger)

	// 7. Initialize API Handler (ConnectRPC)
	handler := api.NewAuctionServiceHandler(auctionService, ratingService)
	path, h := api.NewHandler(handler, auth.NewAuthInterceptor(signer))

	// 8. Start Outbox Relay
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

	go func() {
		logger.Info("Starting Outbox Relay...")
		if err := producer.Run(ctx); err != nil {
			logger.Error("Outbox Relay stopped", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle(path, h)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// 9. Start Server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "error", err)
		}
	}()

	logger.Info("Starting Auction Service API", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("API stopped")
}
