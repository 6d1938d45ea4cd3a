package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Veenoway/on-chain-chess-sub001/pkg/logger"
	"github.com/Veenoway/on-chain-chess-sub001/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// IPKeyFunc rate limit key for anonymous queue routes
func IPKeyFunc(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimit rejects requests over the limiter's budget with 429. Limiter
// errors fail open.
func RateLimit(limiter ratelimit.Limiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = IPKeyFunc
	}

	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := keyFunc(c)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
		decision, err := limiter.Take(ctx, key)
		cancel()
		if err != nil {
			logger.Warn("Rate limit check failed, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

		if !decision.Allowed {
			retryAfter := int(time.Until(decision.ResetAt).Seconds() + 0.999)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      "RATE_LIMITED",
				"retryAfter": retryAfter,
			})
			return
		}

		c.Next()
	}
}
