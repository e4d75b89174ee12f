package middleware

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/genresorter/api/pkg/response"
)

// RateLimiter counts requests per user in fixed redis windows. A nil redis
// client disables limiting.
type RateLimiter struct {
	redis *redis.Client
	log   logr.Logger
}

func NewRateLimiter(redisClient *redis.Client, log logr.Logger) *RateLimiter {
	return &RateLimiter{redis: redisClient, log: log.WithName("ratelimit")}
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.redis == nil || maxRequests <= 0 {
			return c.Next()
		}
		userID := GetUserID(c)
		if userID == "" {
			return c.Next() // Skip rate limiting if no user (auth middleware should catch this)
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, userID)
		ctx := c.UserContext()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// If Redis fails, allow the request but log the error
			rl.log.Error(err, "rate limit check failed", "key", key)
			return c.Next()
		}

		// Set expiration on first request
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// SnapshotLimit limits library fetches per minute.
func (rl *RateLimiter) SnapshotLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("snapshot", maxPerMin, time.Minute)
}

// PlaylistLimit limits playlist batches per hour.
func (rl *RateLimiter) PlaylistLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("playlists", maxPerHour, time.Hour)
}
