package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/pkg/errors"
	"github.com/troikatech/callbridge/pkg/logger"
)

// RateLimiter is a fixed-window per-client limiter backed by Redis.
// A nil client disables limiting.
type RateLimiter struct {
	client      redis.Cmdable
	maxRequests int
	window      time.Duration
	prefix      string
}

func NewRateLimiter(client redis.Cmdable, maxRequestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		client:      client,
		maxRequests: maxRequestsPerMinute,
		window:      time.Minute,
		prefix:      "ratelimit",
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.client == nil || rl.maxRequests <= 0 {
			c.Next()
			return
		}

		window := time.Now().Unix() / int64(rl.window.Seconds())
		key := fmt.Sprintf("%s:%s:%d", rl.prefix, c.ClientIP(), window)
		ctx := c.Request.Context()

		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			// Redis being down must not take the API with it
			logger.Log.Warn("Rate limit check failed, allowing request", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			rl.client.Expire(ctx, key, rl.window)
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.maxRequests))
		if count > int64(rl.maxRequests) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			errors.TooManyRequests(c, "rate limit exceeded")
			return
		}

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.maxRequests-int(count)))
		c.Next()
	}
}
