package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/alephdeploy/control-plane/internal/apierr"
	"github.com/alephdeploy/control-plane/internal/auth"
	"github.com/alephdeploy/control-plane/internal/pkg/response"
)

// RateLimit keys the limiter by client IP, rejecting with 429 once a
// caller exceeds its per-minute budget on this endpoint.
func RateLimit(limiter *auth.ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			response.ErrorMessage(c, 429, apierr.ErrRateLimited.Error())
			c.Abort()
			return
		}
		c.Next()
	}
}
