package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/black-bourne/educ-backend/pkg/errors"
	"github.com/black-bourne/educ-backend/pkg/logger"
	"github.com/black-bourne/educ-backend/pkg/metrics"
	"github.com/black-bourne/educ-backend/pkg/response"
)

// RateLimitPolicy names a throttled endpoint group and its budget.
type RateLimitPolicy struct {
	Group       string
	MaxRequests int
	Window      time.Duration
}

// Default budgets for the authentication endpoints.
var (
	LoginRatePolicy  = RateLimitPolicy{Group: "login", MaxRequests: 5, Window: time.Minute}
	VerifyRatePolicy = RateLimitPolicy{Group: "verify", MaxRequests: 5, Window: time.Minute}
	ResetRatePolicy  = RateLimitPolicy{Group: "reset", MaxRequests: 5, Window: time.Hour}
)

// RateLimit throttles requests per client IP within the policy's window,
// using the supplied store so limits hold across instances.
func RateLimit(store RateStore, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || policy.MaxRequests <= 0 || policy.Window <= 0 {
			c.Next()
			return
		}

		key := "rate:" + policy.Group + ":" + c.ClientIP()

		count, ttl, err := store.Increment(c.Request.Context(), key, policy.Window)
		if err != nil {
			// Fail open: a broken counter should not lock everyone out.
			logger.WithModule("http").Warn("rate limit store unavailable",
				zap.String("group", policy.Group),
				zap.Error(err),
			)
			c.Next()
			return
		}

		remaining := policy.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(policy.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > policy.MaxRequests {
			metrics.RateLimited.WithLabelValues(policy.Group).Inc()
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}

		c.Next()
	}
}
