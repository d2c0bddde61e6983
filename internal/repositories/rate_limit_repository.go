package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitRepository implements a fixed-window request counter.
type RateLimitRepository interface {
	CheckLimit(ctx context.Context, key string, limit int) (bool, error)
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimitRepo counts requests in Redis.
type RateLimitRepo struct {
	redis *redis.Client
}

// NewRateLimitRepo constructs a RateLimitRepo.
func NewRateLimitRepo(client *redis.Client) *RateLimitRepo {
	return &RateLimitRepo{redis: client}
}

// CheckLimit reports whether the key is still under limit for the current window.
func (r *RateLimitRepo) CheckLimit(ctx context.Context, key string, limit int) (bool, error) {
	count, err := r.redis.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return count < limit, nil
}

// Increment bumps the window counter, starting the window on first hit.
func (r *RateLimitRepo) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		r.redis.Expire(ctx, key, window)
	}
	return count, nil
}
