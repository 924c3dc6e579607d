package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"authcore.org/internal/directory"
)

var pgUniqueErr = pgconn.PgError{Code: pgUniqueViolation}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestInsertAssignmentIdempotent(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := directory.RoleAssignment{
		ID:         "as-1",
		UserID:     "user-1",
		RoleID:     "role-1",
		AssignedAt: at,
		AssignedBy: "admin-1",
		Active:     true,
	}

	mock.ExpectExec("insert into role_assignments").
		WithArgs(a.ID, a.UserID, a.RoleID, a.AssignedAt, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into role_assignments").
		WithArgs(sqlmock.AnyArg(), a.UserID, a.RoleID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := store.InsertAssignment(context.Background(), a)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	a.ID = "as-2"
	inserted, err = store.InsertAssignment(context.Background(), a)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatal("conflicting insert reported as inserted")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeactivateAssignmentReportsMiss(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("update role_assignments set active=false").
		WithArgs("user-1", "role-1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	done, err := store.DeactivateAssignment(context.Background(), "user-1", "role-1", at)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if done {
		t.Fatal("deactivation of a missing row reported as done")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateRoleMapsUniqueViolation(t *testing.T) {
	store, mock := newMock(t)
	role := directory.Role{ID: "role-1", Name: "EDITOR", CreatedAt: time.Now().UTC()}

	mock.ExpectExec("insert into roles").
		WithArgs(role.ID, role.Name, role.Description, role.CreatedAt).
		WillReturnError(&pgUniqueErr)

	if _, err := store.CreateRole(context.Background(), role); !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleByNameNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("select id, name, description, created_at from roles").
		WithArgs("GHOST").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at"}))

	if _, err := store.RoleByName(context.Background(), "GHOST"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestActiveAssignmentsScansNullables(t *testing.T) {
	store, mock := newMock(t)
	assignedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := assignedAt.Add(time.Hour)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "role_id", "name", "assigned_at", "assigned_by", "expires_at", "active", "revoked_at",
	}).
		AddRow("as-1", "user-1", "role-1", "EDITOR", assignedAt, "admin-1", expiresAt, true, nil).
		AddRow("as-2", "user-1", "role-2", "AUTHOR", assignedAt, nil, nil, true, nil)

	mock.ExpectQuery("select a.id, a.user_id, a.role_id, r.name").
		WithArgs("user-1").
		WillReturnRows(rows)

	got, err := store.ActiveAssignments(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("active assignments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d assignments, want 2", len(got))
	}
	if got[0].ExpiresAt == nil || !got[0].ExpiresAt.Equal(expiresAt) {
		t.Fatalf("first assignment expiry = %v, want %v", got[0].ExpiresAt, expiresAt)
	}
	if got[1].ExpiresAt != nil {
		t.Fatalf("permanent assignment carries expiry %v", got[1].ExpiresAt)
	}
	if got[0].RoleName != "EDITOR" || got[1].AssignedBy != "" {
		t.Fatalf("unexpected scan: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestActiveGrants(t *testing.T) {
	store, mock := newMock(t)
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "code", "category", "created_at"}).
		AddRow("perm-1", "POST_CREATE", "posts", createdAt)
	mock.ExpectQuery("select p.id, p.code, p.category, p.created_at").
		WithArgs("role-1").
		WillReturnRows(rows)

	got, err := store.ActiveGrants(context.Background(), "role-1")
	if err != nil {
		t.Fatalf("active grants: %v", err)
	}
	if len(got) != 1 || got[0].Code != "POST_CREATE" {
		t.Fatalf("unexpected grants: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
