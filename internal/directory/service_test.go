package directory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testService(t *testing.T, now *time.Time) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, err := NewService(store, WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := testService(t, &now)
	ctx := context.Background()

	if _, err := svc.CreateRole(ctx, "editor", "content editors"); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	if err := svc.AssignRole(ctx, "user-1", "EDITOR", "admin-9", nil); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if err := svc.AssignRole(ctx, "user-1", "EDITOR", "admin-9", nil); err != nil {
		t.Fatalf("second AssignRole must be a no-op: %v", err)
	}

	assignments, err := svc.FindActiveRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("FindActiveRoles: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("expected exactly one active assignment, got %d", len(assignments))
	}
	if assignments[0].RoleName != "EDITOR" || assignments[0].AssignedBy != "admin-9" {
		t.Fatalf("unexpected assignment row: %+v", assignments[0])
	}
}

func TestAssignUnknownRole(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := testService(t, &now)

	err := svc.AssignRole(context.Background(), "user-1", "GHOST", "admin-9", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeThenReassignInsertsNewRow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, store := testService(t, &now)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "editor", "")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := svc.AssignRole(ctx, "user-1", "EDITOR", "", nil); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if err := svc.RevokeRole(ctx, "user-1", "EDITOR"); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}

	assignments, err := svc.FindActiveRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("FindActiveRoles: %v", err)
	}
	if len(assignments) != 0 {
		t.Fatalf("expected no active assignments after revoke, got %d", len(assignments))
	}

	// Revoking again is a no-op, not an error.
	if err := svc.RevokeRole(ctx, "user-1", "EDITOR"); err != nil {
		t.Fatalf("repeated RevokeRole: %v", err)
	}

	if err := svc.AssignRole(ctx, "user-1", "EDITOR", "", nil); err != nil {
		t.Fatalf("re-AssignRole: %v", err)
	}
	assignments, err = svc.FindActiveRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("FindActiveRoles: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("expected EDITOR restored, got %d assignments", len(assignments))
	}

	// History keeps the deactivated row; re-grant is a fresh insert.
	history := store.AssignmentHistory("user-1", role.ID)
	if len(history) != 2 {
		t.Fatalf("expected two historical rows, got %d", len(history))
	}
	if history[0].Active || history[0].RevokedAt == nil {
		t.Fatalf("first row must stay deactivated: %+v", history[0])
	}
	if !history[1].Active {
		t.Fatalf("second row must be active: %+v", history[1])
	}
}

func TestAssignTemporaryRole(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := testService(t, &now)
	ctx := context.Background()

	if _, err := svc.CreateRole(ctx, "temp", ""); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := svc.AssignTemporaryRole(ctx, "user-1", "TEMP", "admin-9", time.Hour); err != nil {
		t.Fatalf("AssignTemporaryRole: %v", err)
	}

	assignments, err := svc.FindActiveRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("FindActiveRoles: %v", err)
	}
	if len(assignments) != 1 || assignments[0].ExpiresAt == nil {
		t.Fatalf("expected one expiring assignment, got %+v", assignments)
	}
	if !assignments[0].ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", assignments[0].ExpiresAt)
	}

	// Still listed as active after expiry; expiry filtering is the
	// resolver's job.
	if assignments[0].Expired(now) {
		t.Fatal("assignment must not be expired yet")
	}
	later := now.Add(2 * time.Hour)
	if !assignments[0].Expired(later) {
		t.Fatal("assignment must report expired after its instant")
	}

	if err := svc.AssignTemporaryRole(ctx, "user-1", "TEMP", "admin-9", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero duration, got %v", err)
	}
}

func TestGrantAndRevokePermission(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := testService(t, &now)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "editor", "")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := svc.CreatePermission(ctx, "POST_CREATE", "content"); err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}

	if err := svc.GrantPermission(ctx, "EDITOR", "POST_CREATE", "admin-9"); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}
	if err := svc.GrantPermission(ctx, "EDITOR", "POST_CREATE", "admin-9"); err != nil {
		t.Fatalf("second GrantPermission must be a no-op: %v", err)
	}

	perms, err := svc.FindActiveGrants(ctx, role.ID)
	if err != nil {
		t.Fatalf("FindActiveGrants: %v", err)
	}
	if len(perms) != 1 || perms[0].Code != "POST_CREATE" {
		t.Fatalf("unexpected grants: %+v", perms)
	}

	if err := svc.RevokePermission(ctx, "EDITOR", "POST_CREATE"); err != nil {
		t.Fatalf("RevokePermission: %v", err)
	}
	perms, err = svc.FindActiveGrants(ctx, role.ID)
	if err != nil {
		t.Fatalf("FindActiveGrants: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("expected no grants after revoke, got %+v", perms)
	}

	if err := svc.GrantPermission(ctx, "EDITOR", "GHOST_PERM", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown permission, got %v", err)
	}
}

func TestCreateRoleConflictAndNormalization(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := testService(t, &now)
	ctx := context.Background()

	if _, err := svc.CreateRole(ctx, " editor ", ""); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := svc.CreateRole(ctx, "EDITOR", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := svc.CreateRole(ctx, "  ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEnsureBuiltins(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, store := testService(t, &now)
	ctx := context.Background()

	if err := svc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	if err := svc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("repeated EnsureBuiltins: %v", err)
	}
	if _, err := store.PermissionByCode(ctx, PermManageDirectory); err != nil {
		t.Fatalf("builtin permission missing: %v", err)
	}
}
