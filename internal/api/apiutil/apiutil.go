// Package apiutil holds helpers shared by the API handler packages: the
// mapping from service errors to HTTP responses and the per-request
// permission check.
package apiutil

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/backoffice-platform/backoffice/internal/auth"
	"github.com/backoffice-platform/backoffice/internal/db/models"
	"github.com/backoffice-platform/backoffice/internal/middleware"
	"github.com/backoffice-platform/backoffice/internal/telemetry"
)

// Error maps a service error onto the HTTP response. Permission denials are
// 403, missing entities 404, locked accounts 423 with a Retry-After hint, and
// everything else a generic 500 so internal detail never leaks to clients.
func Error(c *gin.Context, err error) {
	var locked *auth.AccountLockedError
	var denied *auth.PermissionDeniedError
	var notFound *auth.NotFoundError

	switch {
	case errors.As(err, &locked):
		retryAfter := int((locked.RetryAfter() + time.Second - 1) / time.Second)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusLocked, gin.H{"error": locked.Error()})
	case errors.As(err, &denied):
		c.JSON(http.StatusForbidden, gin.H{"error": denied.Detail})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Detail})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// CurrentUser returns the authenticated user bound by the auth middleware,
// or nil when the route was somehow reached without it.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(middleware.UserContextKey)
	if !ok {
		return nil
	}
	user, ok := v.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// Authorize evaluates the caller's permission on the module, honoring the
// X-Active-Role header bound by the auth middleware. On failure it writes the
// error response and returns ok=false; denials are counted per module and
// action.
func Authorize(c *gin.Context, moduleSlug string, action auth.Action) (*models.User, *auth.UserModulePermission, bool) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, nil, false
	}

	activeRole := c.GetString(middleware.ActiveRoleContextKey)
	perm, err := auth.Evaluate(user, moduleSlug, action, activeRole)
	if err != nil {
		var denied *auth.PermissionDeniedError
		if errors.As(err, &denied) {
			telemetry.PermissionDenialsTotal.WithLabelValues(moduleSlug, string(action)).Inc()
		}
		Error(c, err)
		return nil, nil, false
	}
	return user, perm, true
}
