package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"visitrack/internal/utils"
)

// Context keys set by AuthRequired.
const (
	CallerIDKey   = "caller_id"
	CallerRoleKey = "caller_role"
)

// AuthRequired parses the bearer token and stores the caller context.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header required")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "Bearer token required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			c.Abort()
			return
		}

		callerID := claims.ID
		if callerID == "" {
			callerID = claims.Subject
		}
		if callerID == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "Token has no caller id")
			c.Abort()
			return
		}

		c.Set(CallerIDKey, callerID)
		c.Set(CallerRoleKey, claims.Role)
		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired(adminRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(CallerRoleKey)
		if !exists {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		if roleStr, ok := role.(string); !ok || roleStr != adminRole {
			utils.ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", "Admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}

// CallerID returns the authenticated caller, or "" on public routes.
func CallerID(c *gin.Context) string {
	return c.GetString(CallerIDKey)
}
