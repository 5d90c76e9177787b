package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backoffice-platform/backoffice/internal/db/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

type hookFunc func(ctx context.Context, uow *UnitOfWork) error

func (f hookFunc) BeforeCommit(ctx context.Context, uow *UnitOfWork) error { return f(ctx, uow) }

// =============================================================================
// DiffSnapshots Tests
// =============================================================================

func TestDiffSnapshots(t *testing.T) {
	t.Run("returns only changed fields", func(t *testing.T) {
		before := map[string]any{"title": "old", "status": "open", "owner_id": "u1"}
		after := map[string]any{"title": "new", "status": "open", "owner_id": "u1"}

		changes := DiffSnapshots(before, after)

		require.Len(t, changes, 1)
		assert.Equal(t, FieldChange{Old: "old", New: "new"}, changes["title"])
	})

	t.Run("identical snapshots produce empty diff", func(t *testing.T) {
		snap := map[string]any{"title": "same", "count": 3}

		changes := DiffSnapshots(snap, snap)

		assert.Empty(t, changes)
	})

	t.Run("nil values stringify to empty string", func(t *testing.T) {
		before := map[string]any{"description": nil}
		after := map[string]any{"description": "filled in"}

		changes := DiffSnapshots(before, after)

		require.Len(t, changes, 1)
		assert.Equal(t, FieldChange{Old: "", New: "filled in"}, changes["description"])
	})

	t.Run("fields present on only one side are reported", func(t *testing.T) {
		before := map[string]any{"removed": "gone"}
		after := map[string]any{"added": "here"}

		changes := DiffSnapshots(before, after)

		require.Len(t, changes, 2)
		assert.Equal(t, FieldChange{Old: "gone", New: ""}, changes["removed"])
		assert.Equal(t, FieldChange{Old: "", New: "here"}, changes["added"])
	})
}

// =============================================================================
// Change Tracking Tests
// =============================================================================

func TestUnitOfWorkChangeTracking(t *testing.T) {
	t.Run("records creates updates and deletes", func(t *testing.T) {
		database, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		factory := NewUnitOfWorkFactory(database)
		uow, err := factory.Begin(context.Background())
		require.NoError(t, err)

		created := &models.Task{ID: "t1", Title: "write report", Status: models.TaskStatusOpen, OwnerID: "u1"}
		before := &models.Task{ID: "t2", Title: "draft", Status: models.TaskStatusOpen, OwnerID: "u1"}
		after := &models.Task{ID: "t2", Title: "draft", Status: models.TaskStatusDone, OwnerID: "u1"}
		deleted := &models.Task{ID: "t3", Title: "obsolete", Status: models.TaskStatusOpen, OwnerID: "u1"}

		uow.RecordCreate(created)
		uow.RecordUpdate(before, after)
		uow.RecordDelete(deleted)

		pending := uow.PendingChanges()
		assert.False(t, pending.Empty())
		require.Len(t, pending.Created, 1)
		require.Len(t, pending.Updated, 1)
		require.Len(t, pending.Deleted, 1)
		assert.Equal(t, "t1", pending.Created[0].EntityID())
		assert.Equal(t, FieldChange{Old: models.TaskStatusOpen, New: models.TaskStatusDone}, pending.Updated[0].Changes["status"])
		assert.Equal(t, "t3", pending.Deleted[0].EntityID())

		require.NoError(t, uow.Commit(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update with no differing fields is dropped", func(t *testing.T) {
		database, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		factory := NewUnitOfWorkFactory(database)
		uow, err := factory.Begin(context.Background())
		require.NoError(t, err)
		defer uow.Rollback()

		task := &models.Task{ID: "t1", Title: "unchanged", Status: models.TaskStatusOpen, OwnerID: "u1"}
		uow.RecordUpdate(task, task)

		assert.True(t, uow.PendingChanges().Empty())
	})
}

// =============================================================================
// Commit Hook Tests
// =============================================================================

func TestUnitOfWorkCommitHooks(t *testing.T) {
	t.Run("hooks run before commit in registration order", func(t *testing.T) {
		database, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		var order []string
		factory := NewUnitOfWorkFactory(database)
		factory.RegisterHook(hookFunc(func(ctx context.Context, uow *UnitOfWork) error {
			order = append(order, "first")
			return nil
		}))
		factory.RegisterHook(hookFunc(func(ctx context.Context, uow *UnitOfWork) error {
			order = append(order, "second")
			return nil
		}))

		uow, err := factory.Begin(context.Background())
		require.NoError(t, err)
		require.NoError(t, uow.Commit(context.Background()))

		assert.Equal(t, []string{"first", "second"}, order)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hook failure rolls back the transaction", func(t *testing.T) {
		database, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		hookErr := errors.New("audit write failed")
		factory := NewUnitOfWorkFactory(database)
		factory.RegisterHook(hookFunc(func(ctx context.Context, uow *UnitOfWork) error {
			return hookErr
		}))

		uow, err := factory.Begin(context.Background())
		require.NoError(t, err)

		err = uow.Commit(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, hookErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hook sees pending changes", func(t *testing.T) {
		database, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		var seen *PendingChanges
		factory := NewUnitOfWorkFactory(database)
		factory.RegisterHook(hookFunc(func(ctx context.Context, uow *UnitOfWork) error {
			seen = uow.PendingChanges()
			return nil
		}))

		uow, err := factory.Begin(context.Background())
		require.NoError(t, err)
		uow.RecordCreate(&models.Task{ID: "t1", Title: "new", Status: models.TaskStatusOpen, OwnerID: "u1"})
		require.NoError(t, uow.Commit(context.Background()))

		require.NotNil(t, seen)
		require.Len(t, seen.Created, 1)
		assert.Equal(t, "Task", seen.Created[0].EntityType())
	})
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestUnitOfWorkLifecycle(t *testing.T) {
	t.Run("commit twice fails", func(t *testing.T) {
		database, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		factory := NewUnitOfWorkFactory(database)
		uow, err := factory.Begin(context.Background())
		require.NoError(t, err)

		require.NoError(t, uow.Commit(context.Background()))
		assert.Error(t, uow.Commit(context.Background()))
	})

	t.Run("rollback after commit is a no-op", func(t *testing.T) {
		database, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		factory := NewUnitOfWorkFactory(database)
		uow, err := factory.Begin(context.Background())
		require.NoError(t, err)

		require.NoError(t, uow.Commit(context.Background()))
		assert.NoError(t, uow.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
