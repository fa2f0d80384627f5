package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/floroz/hammer/services/auction-service/internal/domain/auctions"
)

type Config struct {
	DatabaseURL string `env:"AUCTION_DB_URL" validate:"required"`
	RabbitMQURL string `env:"RABBITMQ_URL"   validate:"required"`
	RedisAddr   string `env:"REDIS_ADDR"`
	HTTPAddr    string `env:"HTTP_ADDR"      envDefault:":8080" validate:"required"`

	JWTPublicKeyPath string `env:"JWT_PUBLIC_KEY_PATH"`
	JWTIssuer        string `env:"JWT_ISSUER" envDefault:"hammer-auth"`

	MinRatingPercentForBid float64       `env:"MIN_RATING_PERCENT_FOR_BID" envDefault:"80"  validate:"min=0,max=100"`
	AutoExtendThreshold    time.Duration `env:"AUTO_EXTEND_THRESHOLD"      envDefault:"5m"  validate:"gt=0"`
	AutoExtendDuration     time.Duration `env:"AUTO_EXTEND_DURATION"       envDefault:"10m" validate:"gt=0"`

	CloseSweepInterval time.Duration `env:"CLOSE_SWEEP_INTERVAL" envDefault:"1s" validate:"gt=0"`
	CloseBatchSize     int           `env:"CLOSE_BATCH_SIZE"     envDefault:"100" validate:"min=1"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE"    envDefault:"10" validate:"min=1"`
	OutboxInterval     time.Duration `env:"OUTBOX_INTERVAL"      envDefault:"1s" validate:"gt=0"`
	DBLockTimeout      time.Duration `env:"DB_LOCK_TIMEOUT"      envDefault:"3s" validate:"gt=0"`
	RatingCacheTTL     time.Duration `env:"RATING_CACHE_TTL"     envDefault:"1m" validate:"gt=0"`
}

// Load reads .env.local and .env when present, then parses and validates the environment.
func Load() (*Config, error) {
	// Load environment variables (local overrides .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()
	return Parse()
}

// Parse builds a Config from the current environment only
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Policy returns the bidding rules the auction controller is built with
func (c *Config) Policy() auctions.Policy {
	return auctions.Policy{
		MinRatingPercentForBid: c.MinRatingPercentForBid,
		AutoExtendThreshold:    c.AutoExtendThreshold,
		AutoExtendDuration:     c.AutoExtendDuration,
	}
}

// RedisEnabled reports whether the rating cache and sweep lock should use Redis
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}
