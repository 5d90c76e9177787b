// Package authapi exposes the authentication endpoints: login, token refresh,
// logout, and the role listing and role menu used by the frontend shell.
package authapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/backoffice-platform/backoffice/internal/api/apiutil"
	"github.com/backoffice-platform/backoffice/internal/auth"
	"github.com/backoffice-platform/backoffice/internal/db/models"
	"github.com/backoffice-platform/backoffice/internal/db/repositories"
	"github.com/backoffice-platform/backoffice/internal/middleware"
)

// Handlers holds the dependencies for the auth endpoints.
type Handlers struct {
	login *auth.LoginService
	roles *repositories.RoleRepository
}

// NewAuthHandlers creates the auth endpoint handlers.
func NewAuthHandlers(login *auth.LoginService, roles *repositories.RoleRepository) *Handlers {
	return &Handlers{login: login, roles: roles}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// userSummary is the client-facing shape of the authenticated user. The
// password hash and lockout bookkeeping never leave the server.
type userSummary struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	IsSuperuser bool    `json:"is_superuser"`
}

func summarize(user *models.User) userSummary {
	return userSummary{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		IsSuperuser: user.IsSuperuser,
	}
}

// Login handles POST /api/auth/login.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	pair, user, err := h.login.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		var locked *auth.AccountLockedError
		var denied *auth.PermissionDeniedError
		switch {
		case errors.As(err, &locked):
			apiutil.Error(c, err)
		case errors.As(err, &denied):
			// Bad credentials are 401, not 403: the caller is not
			// authenticated yet.
			c.JSON(http.StatusUnauthorized, gin.H{"error": denied.Detail})
		default:
			apiutil.Error(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":      pair.AccessToken,
		"refresh_token":     pair.RefreshToken,
		"token_type":        pair.TokenType,
		"access_expires_at": pair.AccessExpires,
		"user":              summarize(user),
	})
}

// Refresh handles POST /api/auth/refresh.
func (h *Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	pair, err := h.login.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		var denied *auth.PermissionDeniedError
		if errors.As(err, &denied) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": denied.Detail})
			return
		}
		apiutil.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Logout handles POST /api/auth/logout. Requires authentication; revokes the
// presented access token.
func (h *Handlers) Logout(c *gin.Context) {
	user := apiutil.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	token := middleware.BearerToken(c)
	if err := h.login.Logout(c.Request.Context(), user.ID, token); err != nil {
		apiutil.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type roleSummary struct {
	Slug        string  `json:"slug"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	SortOrder   int     `json:"sort_order"`
}

// ListRoles handles GET /api/auth/roles. Superusers see every active role;
// everyone else sees the active roles they hold through an active assignment.
func (h *Handlers) ListRoles(c *gin.Context) {
	user := apiutil.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var roles []*models.Role
	if user.IsSuperuser {
		active, err := h.roles.ListActive(c.Request.Context())
		if err != nil {
			apiutil.Error(c, err)
			return
		}
		roles = active
	} else {
		for _, ur := range user.Roles {
			if ur.IsActive && ur.Role != nil && ur.Role.IsActive {
				roles = append(roles, ur.Role)
			}
		}
	}

	summaries := make([]roleSummary, 0, len(roles))
	for _, role := range roles {
		summaries = append(summaries, roleSummary{
			Slug:        role.Slug,
			Name:        role.Name,
			Description: role.Description,
			Icon:        role.Icon,
			SortOrder:   role.SortOrder,
		})
	}

	c.JSON(http.StatusOK, gin.H{"roles": summaries})
}

// RoleMenu handles GET /api/auth/roles/:slug/menu.
func (h *Handlers) RoleMenu(c *gin.Context) {
	user := apiutil.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	slug := c.Param("slug")
	role, err := h.roles.GetMenuGraph(c.Request.Context(), slug)
	if err != nil {
		apiutil.Error(c, err)
		return
	}

	menu, err := auth.BuildRoleMenu(user, role)
	if err != nil {
		apiutil.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"role": slug, "menu": menu})
}
