package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/shared/utils"
)

// Limiter decides whether one more request for key fits in the budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed window counter shared by every gateway instance.
type RedisLimiter struct {
	Redis  redis.UniversalClient
	Prefix string
	Limit  int // requests
	Window time.Duration
}

func NewRedisLimiter(r redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{Redis: r, Prefix: prefix, Limit: limit, Window: window}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", r.Prefix, key)
	count, err := r.Redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.Redis.Expire(ctx, redisKey, r.Window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(r.Limit), nil
}

// RateLimit rejects callers over budget with 429. A limiter error lets the request
// through so that a Redis outage does not take the gateway down with it.
func RateLimit(l Limiter, keyFunc func(c *fiber.Ctx) string, log *zap.Logger) fiber.Handler {
	if keyFunc == nil {
		keyFunc = func(c *fiber.Ctx) string { return c.IP() }
	}
	return func(c *fiber.Ctx) error {
		key := keyFunc(c)
		ok, err := l.Allow(c.UserContext(), key)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err))
			return c.Next()
		}
		if !ok {
			log.Warn("rate limit exceeded", zap.String("key", key), zap.String("path", c.Path()))
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(60))
			return utils.JSONError(c, fiber.StatusTooManyRequests, "too many requests")
		}
		return c.Next()
	}
}
