// Package models - task.go defines the Task entity, the sample CRUD collaborator
// that exercises the permission evaluator and the change-capture hook.
package models

import "time"

// Task statuses.
const (
	TaskStatusOpen       = "open"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
)

// Task is a work item owned by the staff member who created it. Users whose
// grant lacks scope_all only see their own tasks in list results.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      string     `json:"status"`
	OwnerID     string     `json:"owner_id"`
	DueAt       *time.Time `json:"due_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EntityType implements Snapshotter.
func (t *Task) EntityType() string { return "Task" }

// EntityID implements Snapshotter.
func (t *Task) EntityID() string { return t.ID }

// Snapshot implements Snapshotter.
func (t *Task) Snapshot() map[string]any {
	return map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": strOrNil(t.Description),
		"status":      t.Status,
		"owner_id":    t.OwnerID,
		"due_at":      timeOrNil(t.DueAt),
	}
}
