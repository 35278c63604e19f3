package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed-window request limit per caller using Redis.
// The limit key prefers the call_sid query parameter so that each phone call
// gets its own budget; API clients without one fall back to client IP.
type RateLimiter struct {
	client      redis.Cmdable
	maxRequests int
	windowSec   int
}

func NewRateLimiter(client redis.Cmdable, maxRequestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		client:      client,
		maxRequests: maxRequestsPerMinute,
		windowSec:   60,
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.Query("call_sid")
		if caller == "" {
			caller = c.ClientIP()
		}

		key := fmt.Sprintf("ratelimit:%s", caller)
		ctx := context.Background()

		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			// Redis being down should not take the voice path with it.
			c.Next()
			return
		}

		if count == 1 {
			rl.client.Expire(ctx, key, time.Duration(rl.windowSec)*time.Second)
		}

		if count > int64(rl.maxRequests) {
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.maxRequests))
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": rl.windowSec,
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rl.maxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.maxRequests-int(count)))
		c.Next()
	}
}
