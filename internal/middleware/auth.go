package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"trip-collab-service/internal/identity"
)

// AuthMiddleware validates the Authorization header via the identity resolver
// and stores the caller's member id in the request context.
func AuthMiddleware(resolver identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		memberID, err := resolver.ResolveCaller(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("memberID", memberID)
		c.Next()
	}
}
