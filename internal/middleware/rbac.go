package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Role constants
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var roleHierarchy = map[string]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

func isRoleAtLeast(userRole, requiredRole string) bool {
	return roleHierarchy[userRole] >= roleHierarchy[requiredRole] && roleHierarchy[userRole] > 0
}

// RequireRole rejects callers below requiredRole. Must run after Auth.
func RequireRole(requiredRole string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if !isRoleAtLeast(role, requiredRole) {
			logger.Warn("permission denied",
				zap.String("path", c.FullPath()),
				zap.String("role", role),
				zap.String("required", requiredRole),
			)
			abortWithError(c, http.StatusForbidden, APIError{Code: ErrCodeForbidden, Message: "insufficient permissions"})
			return
		}
		c.Next()
	}
}

// RequireSelfOrAdmin lets a caller through when the email path parameter is
// their own, or when they are an admin. Must run after Auth.
func RequireSelfOrAdmin(param string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, _ := GetEmail(c)
		target := strings.ToLower(strings.TrimSpace(c.Param(param)))
		if IsAdmin(c) || (email != "" && email == target) {
			c.Next()
			return
		}
		logger.Warn("permission denied",
			zap.String("path", c.FullPath()),
			zap.String("email", email),
		)
		abortWithError(c, http.StatusForbidden, APIError{Code: ErrCodeForbidden, Message: "insufficient permissions"})
	}
}
