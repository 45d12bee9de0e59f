package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"baria-go/pkg/token"
)

// RequireRole must run after AuthMiddleware. Requests without claims pass
// only when authentication is disabled.
func RequireRole(role string, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		v, ok := c.Get(ClaimsKey)
		claims, isClaims := v.(*token.CustomClaims)
		if !ok || !isClaims {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}
