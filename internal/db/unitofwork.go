// unitofwork.go implements the transactional unit of work used by every write
// path. Repositories execute their SQL through the unit's transaction and
// record the entities they touched; registered hooks observe the pending
// change sets immediately before commit, inside the same transaction, so
// anything a hook writes is atomic with the business change.
package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/backoffice-platform/backoffice/internal/db/models"
)

// FieldChange is one changed field in an update, with both values stringified.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// PendingUpdate pairs an updated entity with the diff of its snapshots.
type PendingUpdate struct {
	Entity  models.Snapshotter
	Changes map[string]FieldChange
}

// PendingChanges holds the change sets accumulated in a unit of work.
type PendingChanges struct {
	Created []models.Snapshotter
	Updated []PendingUpdate
	Deleted []models.Snapshotter
}

// Empty reports whether the unit of work tracked no entity changes.
func (p *PendingChanges) Empty() bool {
	return len(p.Created) == 0 && len(p.Updated) == 0 && len(p.Deleted) == 0
}

// CommitHook observes a unit of work just before its transaction commits.
// Returning an error aborts the whole transaction: hooks are fail-closed.
type CommitHook interface {
	BeforeCommit(ctx context.Context, uow *UnitOfWork) error
}

// UnitOfWorkFactory opens units of work against the shared pool and carries
// the hooks registered at startup into every unit it creates.
type UnitOfWorkFactory struct {
	db    *sqlx.DB
	hooks []CommitHook
}

// NewUnitOfWorkFactory creates a factory with no hooks registered.
func NewUnitOfWorkFactory(database *sqlx.DB) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{db: database}
}

// RegisterHook adds a before-commit hook to all future units of work. Hooks
// run in registration order.
func (f *UnitOfWorkFactory) RegisterHook(h CommitHook) {
	f.hooks = append(f.hooks, h)
}

// Begin opens a new unit of work on its own transaction.
func (f *UnitOfWorkFactory) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx, hooks: f.hooks}, nil
}

// UnitOfWork is a single transaction plus the change sets recorded against it.
// It is not safe for concurrent use; each request gets its own.
type UnitOfWork struct {
	tx      *sqlx.Tx
	hooks   []CommitHook
	pending PendingChanges
	done    bool
}

// Tx exposes the underlying transaction for repositories.
func (u *UnitOfWork) Tx() *sqlx.Tx {
	return u.tx
}

// RecordCreate registers a newly inserted entity.
func (u *UnitOfWork) RecordCreate(entity models.Snapshotter) {
	u.pending.Created = append(u.pending.Created, entity)
}

// RecordUpdate registers an updated entity by diffing the before and after
// snapshots. Fields whose stringified values are equal are omitted; an update
// with no differing field is dropped entirely, so a no-op save produces no
// pending entry (and therefore no audit row).
func (u *UnitOfWork) RecordUpdate(before, after models.Snapshotter) {
	changes := DiffSnapshots(before.Snapshot(), after.Snapshot())
	if len(changes) == 0 {
		return
	}
	u.pending.Updated = append(u.pending.Updated, PendingUpdate{Entity: after, Changes: changes})
}

// RecordDelete registers an entity about to be removed. The snapshot is taken
// eagerly so the hook sees the state as it was before deletion even if the
// caller mutates the struct afterwards.
func (u *UnitOfWork) RecordDelete(entity models.Snapshotter) {
	u.pending.Deleted = append(u.pending.Deleted, entity)
}

// PendingChanges returns the accumulated change sets.
func (u *UnitOfWork) PendingChanges() *PendingChanges {
	return &u.pending
}

// Commit runs all registered hooks and then commits the transaction. If any
// hook fails the transaction is rolled back and the hook's error returned:
// audit rows and business rows persist together or not at all.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return fmt.Errorf("unit of work already finished")
	}
	u.done = true

	for _, h := range u.hooks {
		if err := h.BeforeCommit(ctx, u); err != nil {
			if rbErr := u.tx.Rollback(); rbErr != nil {
				return fmt.Errorf("before-commit hook failed: %w (rollback also failed: %v)", err, rbErr)
			}
			return fmt.Errorf("before-commit hook failed: %w", err)
		}
	}

	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to defer after Begin; it is a no-op
// once Commit has run.
func (u *UnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback()
}

// DiffSnapshots compares two snapshots field by field and returns the fields
// whose stringified values differ. Fields present in only one snapshot are
// treated as changed from (or to) the empty string.
func DiffSnapshots(before, after map[string]any) map[string]FieldChange {
	changes := make(map[string]FieldChange)

	for field, oldVal := range before {
		newVal, ok := after[field]
		if !ok {
			changes[field] = FieldChange{Old: stringifyValue(oldVal), New: ""}
			continue
		}
		oldStr, newStr := stringifyValue(oldVal), stringifyValue(newVal)
		if oldStr != newStr {
			changes[field] = FieldChange{Old: oldStr, New: newStr}
		}
	}
	for field, newVal := range after {
		if _, ok := before[field]; !ok {
			changes[field] = FieldChange{Old: "", New: stringifyValue(newVal)}
		}
	}

	return changes
}

func stringifyValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
