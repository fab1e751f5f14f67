package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alephdeploy/control-plane/internal/auth"
	"github.com/alephdeploy/control-plane/internal/pkg/response"
)

const contextKeyAddress = "walletAddress"

// RequireSession resolves the bearer token on every request into the
// wallet address that owns it, rejecting the request if the token is
// missing, malformed, or expired.
func RequireSession(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}

		sess, ok := svc.Session(token)
		if !ok {
			response.Unauthorized(c, "invalid or expired session")
			c.Abort()
			return
		}

		c.Set(contextKeyAddress, sess.Address)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return c.Query("token")
}

// WalletAddress extracts the authenticated caller's wallet address set by
// RequireSession.
func WalletAddress(c *gin.Context) (string, error) {
	v, exists := c.Get(contextKeyAddress)
	if !exists {
		return "", fmt.Errorf("wallet address not found in context")
	}
	addr, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("wallet address is not a string")
	}
	return addr, nil
}
