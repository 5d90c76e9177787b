// Package auditapi exposes the audit trail query endpoint, guarded by READ
// permission on the audit-logs module.
package auditapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/backoffice-platform/backoffice/internal/api/apiutil"
	"github.com/backoffice-platform/backoffice/internal/auth"
	"github.com/backoffice-platform/backoffice/internal/db/models"
	"github.com/backoffice-platform/backoffice/internal/db/repositories"
)

// ModuleSlug is the RBAC module guarding these endpoints.
const ModuleSlug = "audit-logs"

// Handlers holds the dependencies for the audit endpoints.
type Handlers struct {
	audits *repositories.AuditRepository
}

// NewAuditHandlers creates the audit endpoint handlers.
func NewAuditHandlers(audits *repositories.AuditRepository) *Handlers {
	return &Handlers{audits: audits}
}

// List handles GET /api/audit. Filters are conjunctive; time bounds are
// RFC 3339.
func (h *Handlers) List(c *gin.Context) {
	if _, _, ok := apiutil.Authorize(c, ModuleSlug, auth.ActionRead); !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	filter := repositories.AuditFilter{
		UserID:     c.Query("user_id"),
		Username:   c.Query("username"),
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
		Limit:      limit,
		Offset:     offset,
	}

	for param, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": param + " must be an RFC 3339 timestamp"})
			return
		}
		*dst = &ts
	}

	entries, total, err := h.audits.List(c.Request.Context(), filter)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditLog{}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}
