package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PasswordChangeRequiredMessage 是未完成改密时的统一错误文案。
const PasswordChangeRequiredMessage = "password change required"

// RequirePasswordChangeCompleted 阻止带 must_change_password 声明的令牌访问业务接口，
// 需放在 AuthMiddleware 之后。只读令牌声明，不查库。
func RequirePasswordChangeCompleted() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(MustChangePasswordKey) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": PasswordChangeRequiredMessage})
			return
		}
		c.Next()
	}
}
