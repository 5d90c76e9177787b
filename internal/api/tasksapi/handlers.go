// Package tasksapi exposes the task CRUD endpoints. Every write runs inside a
// unit of work so the change-capture hook records it; list and read visibility
// narrows to the caller's own tasks unless their grant carries scope_all.
package tasksapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/backoffice-platform/backoffice/internal/api/apiutil"
	"github.com/backoffice-platform/backoffice/internal/auth"
	"github.com/backoffice-platform/backoffice/internal/db"
	"github.com/backoffice-platform/backoffice/internal/db/models"
	"github.com/backoffice-platform/backoffice/internal/db/repositories"
)

// ModuleSlug is the RBAC module guarding these endpoints.
const ModuleSlug = "tasks"

// Handlers holds the dependencies for the task endpoints.
type Handlers struct {
	tasks *repositories.TaskRepository
	uow   *db.UnitOfWorkFactory
}

// NewTaskHandlers creates the task endpoint handlers.
func NewTaskHandlers(tasks *repositories.TaskRepository, uow *db.UnitOfWorkFactory) *Handlers {
	return &Handlers{tasks: tasks, uow: uow}
}

type createTaskRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description *string    `json:"description"`
	Status      string     `json:"status"`
	DueAt       *time.Time `json:"due_at"`
}

type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	DueAt       *time.Time `json:"due_at"`
}

func validStatus(status string) bool {
	switch status {
	case models.TaskStatusOpen, models.TaskStatusInProgress, models.TaskStatusDone:
		return true
	}
	return false
}

// Create handles POST /api/tasks.
func (h *Handlers) Create(c *gin.Context) {
	user, _, ok := apiutil.Authorize(c, ModuleSlug, auth.ActionCreate)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if req.Status == "" {
		req.Status = models.TaskStatusOpen
	}
	if !validStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	task := &models.Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		OwnerID:     user.ID,
		DueAt:       req.DueAt,
	}

	uow, err := h.uow.Begin(c.Request.Context())
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	defer uow.Rollback()

	if err := h.tasks.CreateTx(c.Request.Context(), uow.Tx(), task); err != nil {
		apiutil.Error(c, err)
		return
	}
	uow.RecordCreate(task)

	if err := uow.Commit(c.Request.Context()); err != nil {
		apiutil.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

// Get handles GET /api/tasks/:id.
func (h *Handlers) Get(c *gin.Context) {
	user, perm, ok := apiutil.Authorize(c, ModuleSlug, auth.ActionRead)
	if !ok {
		return
	}

	task, err := h.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	// Tasks outside the caller's scope answer 404 rather than 403 so their
	// existence is not revealed.
	if task == nil || (!perm.ScopeAll && task.OwnerID != user.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, task)
}

// List handles GET /api/tasks.
func (h *Handlers) List(c *gin.Context) {
	user, perm, ok := apiutil.Authorize(c, ModuleSlug, auth.ActionRead)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	filter := repositories.TaskFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	}
	if !perm.ScopeAll {
		filter.OwnerID = user.ID
	}

	tasks, total, err := h.tasks.List(c.Request.Context(), filter)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks":  tasks,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Update handles PUT /api/tasks/:id. Only provided fields change; a request
// that changes nothing still succeeds but produces no audit row.
func (h *Handlers) Update(c *gin.Context) {
	user, perm, ok := apiutil.Authorize(c, ModuleSlug, auth.ActionUpdate)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Status != nil && !validStatus(*req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	task, err := h.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	if task == nil || (!perm.ScopeAll && task.OwnerID != user.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	before := *task
	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = req.Description
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if req.DueAt != nil {
		task.DueAt = req.DueAt
	}

	uow, err := h.uow.Begin(c.Request.Context())
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	defer uow.Rollback()

	if err := h.tasks.UpdateTx(c.Request.Context(), uow.Tx(), task); err != nil {
		apiutil.Error(c, err)
		return
	}
	uow.RecordUpdate(&before, task)

	if err := uow.Commit(c.Request.Context()); err != nil {
		apiutil.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// Delete handles DELETE /api/tasks/:id.
func (h *Handlers) Delete(c *gin.Context) {
	user, perm, ok := apiutil.Authorize(c, ModuleSlug, auth.ActionDelete)
	if !ok {
		return
	}

	task, err := h.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	if task == nil || (!perm.ScopeAll && task.OwnerID != user.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	uow, err := h.uow.Begin(c.Request.Context())
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	defer uow.Rollback()

	if err := h.tasks.DeleteTx(c.Request.Context(), uow.Tx(), task.ID); err != nil {
		apiutil.Error(c, err)
		return
	}
	uow.RecordDelete(task)

	if err := uow.Commit(c.Request.Context()); err != nil {
		apiutil.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
