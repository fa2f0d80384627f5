package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/floroz/hammer/services/auction-service/internal/domain/ratings"
)

const ratingStatsKeyPrefix = "rating_stats:"

// RedisRatingCache implements ratings.StatsCache
type RedisRatingCache struct {
	client redis.Cmdable
}

func NewRedisRatingCache(client redis.Cmdable) *RedisRatingCache {
	return &RedisRatingCache{client: client}
}

func ratingStatsKey(userID uuid.UUID) string {
	return ratingStatsKeyPrefix + userID.String()
}

// Get reports a miss with ok=false and a nil error
func (c *RedisRatingCache) Get(ctx context.Context, userID uuid.UUID) (ratings.Stats, bool, error) {
	raw, err := c.client.Get(ctx, ratingStatsKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ratings.Stats{}, false, nil
		}
		return ratings.Stats{}, false, fmt.Errorf("failed to read rating stats: %w", err)
	}

	var stats ratings.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return ratings.Stats{}, false, fmt.Errorf("failed to decode rating stats: %w", err)
	}
	return stats, true, nil
}

func (c *RedisRatingCache) Set(ctx context.Context, userID uuid.UUID, stats ratings.Stats, ttl time.Duration) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode rating stats: %w", err)
	}
	if err := c.client.Set(ctx, ratingStatsKey(userID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write rating stats: %w", err)
	}
	return nil
}

func (c *RedisRatingCache) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, ratingStatsKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete rating stats: %w", err)
	}
	return nil
}
