package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const SweepLockKey = "auction_close_sweep_lock"

// Deletes the key only if this holder still owns it
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisSweepLock implements auctions.SweepLock with SET NX and an owner token
type RedisSweepLock struct {
	client redis.Cmdable
	key    string
	token  string
}

// NewRedisSweepLock creates a lock owned by this process
func NewRedisSweepLock(client redis.Cmdable) *RedisSweepLock {
	return &RedisSweepLock{
		client: client,
		key:    SweepLockKey,
		token:  uuid.NewString(),
	}
}

// TryAcquire takes the lock for ttl. It returns false when another worker holds it.
func (l *RedisSweepLock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire %s: %w", l.key, err)
	}
	return ok, nil
}

// Release frees the lock if this process still holds it
func (l *RedisSweepLock) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", l.key, err)
	}
	return nil
}
