package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthMiddleware guards the admin endpoints with a static bearer token.
// An empty token disables the admin surface entirely.
type AuthMiddleware struct {
	token  string
	logger *zap.Logger
}

func NewAuthMiddleware(token string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		token:  token,
		logger: logger,
	}
}

func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.token == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin endpoints disabled"})
			c.Abort()
			return
		}

		token := a.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization token required"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			a.logger.Warn("Invalid admin token", zap.String("client_ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (a *AuthMiddleware) extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
