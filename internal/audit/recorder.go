// Package audit - recorder.go implements the change-capture hook: a
// before-commit observer that turns the unit of work's pending change sets
// into audit rows inside the same transaction. Data-change auditing is
// fail-closed; a failed audit insert aborts the business transaction.
package audit

import (
	"context"
	"fmt"

	"github.com/backoffice-platform/backoffice/internal/db"
	"github.com/backoffice-platform/backoffice/internal/db/models"
	"github.com/backoffice-platform/backoffice/internal/db/repositories"
	"github.com/backoffice-platform/backoffice/internal/telemetry"
)

// Recorder writes CREATE/UPDATE/DELETE audit rows for tracked entity changes.
type Recorder struct {
	audits *repositories.AuditRepository
}

// NewRecorder creates a change-capture recorder.
func NewRecorder(audits *repositories.AuditRepository) *Recorder {
	return &Recorder{audits: audits}
}

// Register wires the recorder into the unit of work factory. Callers skip
// registration entirely when data auditing is disabled, so disabled means
// zero overhead, not a per-commit check.
func (r *Recorder) Register(factory *db.UnitOfWorkFactory) {
	factory.RegisterHook(r)
}

// BeforeCommit implements db.CommitHook. One audit row per affected entity,
// written through the unit's own transaction so audit rows and business rows
// commit or roll back together.
func (r *Recorder) BeforeCommit(ctx context.Context, uow *db.UnitOfWork) error {
	pending := uow.PendingChanges()
	if pending.Empty() {
		return nil
	}

	actor := ActorFrom(ctx)

	for _, entity := range pending.Created {
		if isAuditEntity(entity) {
			continue
		}
		if err := r.write(ctx, uow, actor, models.AuditActionCreate, entity, entity.Snapshot()); err != nil {
			return err
		}
	}

	for _, update := range pending.Updated {
		if isAuditEntity(update.Entity) {
			continue
		}
		changes := make(map[string]any, len(update.Changes))
		for field, change := range update.Changes {
			changes[field] = map[string]any{"old": change.Old, "new": change.New}
		}
		if err := r.write(ctx, uow, actor, models.AuditActionUpdate, update.Entity, changes); err != nil {
			return err
		}
	}

	for _, entity := range pending.Deleted {
		if isAuditEntity(entity) {
			continue
		}
		if err := r.write(ctx, uow, actor, models.AuditActionDelete, entity, entity.Snapshot()); err != nil {
			return err
		}
	}

	return nil
}

func (r *Recorder) write(ctx context.Context, uow *db.UnitOfWork, actor Actor, action string, entity models.Snapshotter, changes map[string]any) error {
	entry := &models.AuditLog{
		UserID:     actor.UserID,
		Username:   actor.Username,
		Action:     action,
		EntityType: entity.EntityType(),
		EntityID:   entity.EntityID(),
		Changes:    changes,
	}
	if actor.IPAddress != "" {
		entry.IPAddress = &actor.IPAddress
	}
	if actor.UserAgent != "" {
		entry.UserAgent = &actor.UserAgent
	}

	if err := r.audits.InsertTx(ctx, uow.Tx(), entry); err != nil {
		telemetry.AuditWriteFailuresTotal.WithLabelValues("data").Inc()
		return fmt.Errorf("change capture failed for %s %s: %w", action, entity.EntityType(), err)
	}
	telemetry.AuditRecordsTotal.WithLabelValues(action).Inc()
	return nil
}

// isAuditEntity guards against the recorder auditing its own rows.
func isAuditEntity(entity models.Snapshotter) bool {
	return entity.EntityType() == models.AuditEntityType
}
