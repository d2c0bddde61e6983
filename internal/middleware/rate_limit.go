package middleware

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"toolswap-chat/internal/repositories"
)

const (
	rateLimitRequests = 120
	rateLimitWindow   = time.Minute
)

// RateLimitMiddleware applies a fixed-window per-IP limit to the REST surface.
// A nil repository disables limiting (Redis not configured).
func RateLimitMiddleware(repo repositories.RateLimitRepository) gin.HandlerFunc {
	if repo == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP()

		allowed, err := repo.CheckLimit(c.Request.Context(), key, rateLimitRequests)
		if err != nil {
			// Limiting is best effort; an unreachable counter must not take
			// the chat API down with it.
			log.Printf("rate limit check failed: %v", err)
			c.Next()
			return
		}
		if !allowed {
			c.Header("X-RateLimit-Limit", strconv.Itoa(rateLimitRequests))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		count, err := repo.Increment(c.Request.Context(), key, rateLimitWindow)
		if err != nil {
			log.Printf("rate limit increment failed: %v", err)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rateLimitRequests))
		remaining := rateLimitRequests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
