package audit

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/backoffice-platform/backoffice/internal/db"
	"github.com/backoffice-platform/backoffice/internal/db/models"
	"github.com/backoffice-platform/backoffice/internal/db/repositories"
)

func newRecorderHarness(t *testing.T) (*db.UnitOfWorkFactory, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	sdb := sqlx.NewDb(mockDB, "sqlmock")
	factory := db.NewUnitOfWorkFactory(sdb)
	NewRecorder(repositories.NewAuditRepository(sdb)).Register(factory)
	return factory, mock
}

func actorContext(userID, username string) context.Context {
	return WithActor(context.Background(), Actor{
		UserID:    &userID,
		Username:  &username,
		IPAddress: "10.0.0.1",
		UserAgent: "curl/8.0",
	})
}

func TestRecorder_CreateWritesSnapshotRow(t *testing.T) {
	factory, mock := newRecorderHarness(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	uow, err := factory.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	uow.RecordCreate(&models.Task{ID: "task-1", Title: "write report", Status: models.TaskStatusOpen, OwnerID: "user-1"})

	if err := uow.Commit(actorContext("user-1", "alice")); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecorder_UpdateWritesDiffOnly(t *testing.T) {
	factory, mock := newRecorderHarness(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	uow, err := factory.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	before := &models.Task{ID: "task-1", Title: "Old", Status: models.TaskStatusOpen, OwnerID: "user-1"}
	after := &models.Task{ID: "task-1", Title: "New", Status: models.TaskStatusOpen, OwnerID: "user-1"}
	uow.RecordUpdate(before, after)

	pending := uow.PendingChanges()
	if len(pending.Updated) != 1 {
		t.Fatalf("len(Updated) = %d, want 1", len(pending.Updated))
	}
	changes := pending.Updated[0].Changes
	if len(changes) != 1 {
		t.Fatalf("changes = %+v, want only title", changes)
	}
	if changes["title"].Old != "Old" || changes["title"].New != "New" {
		t.Errorf("title change = %+v", changes["title"])
	}

	if err := uow.Commit(actorContext("user-1", "alice")); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecorder_ZeroDiffUpdateWritesNothing(t *testing.T) {
	factory, mock := newRecorderHarness(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	uow, err := factory.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	task := &models.Task{ID: "task-1", Title: "same", Status: models.TaskStatusOpen, OwnerID: "user-1"}
	uow.RecordUpdate(task, task)

	if err := uow.Commit(actorContext("user-1", "alice")); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// No INSERT INTO audit_logs was expected; unmet expectations would fail here.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecorder_FailClosed(t *testing.T) {
	factory, mock := newRecorderHarness(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnError(errors.New("audit table unavailable"))
	mock.ExpectRollback()

	uow, err := factory.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	uow.RecordDelete(&models.Task{ID: "task-1", Title: "gone", Status: models.TaskStatusOpen, OwnerID: "user-1"})

	if err := uow.Commit(actorContext("user-1", "alice")); err == nil {
		t.Fatal("expected commit to fail when audit insert fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecorder_OneRowPerEntity(t *testing.T) {
	factory, mock := newRecorderHarness(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	uow, err := factory.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	uow.RecordCreate(&models.Task{ID: "t1", Title: "a", Status: models.TaskStatusOpen, OwnerID: "u"})
	uow.RecordCreate(&models.Task{ID: "t2", Title: "b", Status: models.TaskStatusOpen, OwnerID: "u"})
	uow.RecordDelete(&models.Task{ID: "t3", Title: "c", Status: models.TaskStatusOpen, OwnerID: "u"})

	if err := uow.Commit(actorContext("user-1", "alice")); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
