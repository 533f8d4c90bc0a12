package middleware

import (
	"net/http"

	"github.com/subplane/subplane/internal/config"
	"github.com/subplane/subplane/internal/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles a route with a token bucket. Used on the
// webhook endpoint so a misbehaving provider retry storm cannot starve
// the API. Rejected deliveries get a 429, which the provider treats as
// a retryable failure.
func RateLimitMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.Webhook.RateLimit), cfg.Webhook.RateBurst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			logger.Warnw("rate limited request", "path", c.Request.URL.Path)
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
