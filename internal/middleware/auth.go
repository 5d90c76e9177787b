// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, security headers, metrics, and access auditing.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → RateLimit → AccessLog → Auth → Handler
//
// Security headers run first so they appear on all responses including errors.
// The access log runs before auth because it must observe every request, even
// ones that fail authentication; it attributes actors from an unverified token
// decode and degrades to anonymous. Auth populates the verified user identity
// that handlers and the permission evaluator read.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/backoffice-platform/backoffice/internal/auth"
	"github.com/backoffice-platform/backoffice/internal/db/repositories"
)

const (
	// UserContextKey is the gin.Context key holding the authenticated *models.User.
	UserContextKey = "user"
	// UserIDContextKey is the gin.Context key holding the authenticated user's ID.
	UserIDContextKey = "user_id"
	// ActiveRoleContextKey is the gin.Context key holding the personification
	// role slug from the X-Active-Role header. Empty when the header is absent.
	ActiveRoleContextKey = "active_role"

	// ActiveRoleHeader selects a single role to evaluate permissions under
	// instead of the union of all held roles.
	ActiveRoleHeader = "X-Active-Role"
)

// AuthMiddleware validates the bearer token, checks the revocation list, loads
// the user with their role graph, and stores the identity in the gin context.
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerTokenFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must contain a bearer token",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}
		if claims.TokenType != auth.TokenTypeAccess {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Token is not an access token",
			})
			return
		}

		// Logout revokes tokens before they expire, so a signature check
		// alone is not enough.
		revoked, err := userRepo.IsTokenRevoked(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to validate token",
			})
			return
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Token has been revoked",
			})
			return
		}

		user, err := userRepo.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}
		if user == nil || !user.IsActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Account is not active",
			})
			return
		}

		c.Set(UserContextKey, user)
		c.Set(UserIDContextKey, user.ID)
		c.Set(ActiveRoleContextKey, strings.TrimSpace(c.GetHeader(ActiveRoleHeader)))

		c.Next()
	}
}

// BearerToken returns the token from the Authorization header, or the empty
// string when the header is missing or malformed.
func BearerToken(c *gin.Context) string {
	token, _ := bearerTokenFrom(c)
	return token
}

func bearerTokenFrom(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}
