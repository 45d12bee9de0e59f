package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"baria-go/internal/service"
	"baria-go/pkg/log"
)

// ClaimsKey is the gin context key holding *token.CustomClaims.
const ClaimsKey = "claims"

// AuthMiddleware verifies the Bearer access token and stores its claims.
// With enabled=false every request passes untouched.
func AuthMiddleware(authService service.AuthService, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := authService.Verify(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			log.Warnf("[Auth] rejected token on %s: %v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
