package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hama/estate/internal/auth"
	"hama/estate/internal/models"
)

const (
	// ContextKeyUserID holds the key for user ID in Gin context.
	ContextKeyUserID = "userID"
	// ContextKeyRole holds the key for the user's role in Gin context.
	ContextKeyRole = "role"
)

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(parts[1], jwtSecret)
		if err != nil {
			errMsg := fmt.Sprintf("Invalid or expired token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, claims.Role)

		c.Next()
	}
}

// RequireRole allows the request through when the authenticated user has one
// of roles. Admins always pass. Assumes AuthMiddleware runs first.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := RoleFrom(c)
		if role == models.RoleAdmin {
			c.Next()
			return
		}
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("Role %q is not allowed here", role)})
	}
}

// AdminMiddleware creates a Gin middleware to check for admin privileges.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if RoleFrom(c) != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Administrator privileges required"})
			return
		}
		c.Next()
	}
}

// AgentMiddleware restricts a route to agents (and admins).
func AgentMiddleware() gin.HandlerFunc {
	return RequireRole(models.RoleAgent)
}

// UserIDFrom returns the authenticated user id, or "" if none.
func UserIDFrom(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// RoleFrom returns the authenticated user's role, or "" if none.
func RoleFrom(c *gin.Context) models.Role {
	if v, ok := c.Get(ContextKeyRole); ok {
		if role, ok := v.(models.Role); ok {
			return role
		}
	}
	return ""
}
