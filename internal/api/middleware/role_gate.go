package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole 只放行令牌角色在 roles 中的请求，需放在 AuthMiddleware 之后。
// 角色来自 access token，不查库。
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(RoleKey)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "this action requires the " + roles[0] + " role"})
	}
}
