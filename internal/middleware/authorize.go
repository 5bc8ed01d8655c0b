package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatchhub/internal/models"
)

// RequireRoles must run after Auth.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	roleSet := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "no credential", "error": "no_credential"})
			return
		}

		if _, ok := roleSet[identity.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "role " + string(identity.Role) + " is not allowed to access this resource",
				"error":   "forbidden",
			})
			return
		}

		c.Next()
	}
}
