// Package pg implements the directory store on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"authcore.org/internal/directory"
)

var _ directory.Store = (*Store)(nil)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store implements directory.Store over database/sql. Idempotent
// inserts lean on the partial unique indexes that allow at most one
// active row per (user, role) and (role, permission) pair; a conflicting
// insert affects zero rows instead of failing.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateRole(ctx context.Context, role directory.Role) (directory.Role, error) {
	_, err := s.db.ExecContext(ctx,
		`insert into roles(id, name, description, created_at) values($1,$2,$3,$4)`,
		role.ID, role.Name, role.Description, role.CreatedAt,
	)
	if err != nil {
		return directory.Role{}, mapConstraint(err)
	}
	return role, nil
}

func (s *Store) RoleByName(ctx context.Context, name string) (directory.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, description, created_at from roles where name=$1`, name)
	var role directory.Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return directory.Role{}, directory.ErrNotFound
		}
		return directory.Role{}, err
	}
	return role, nil
}

func (s *Store) DeleteRole(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where name=$1`, name)
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePermission(ctx context.Context, perm directory.Permission) (directory.Permission, error) {
	_, err := s.db.ExecContext(ctx,
		`insert into permissions(id, code, category, created_at) values($1,$2,$3,$4)`,
		perm.ID, perm.Code, perm.Category, perm.CreatedAt,
	)
	if err != nil {
		return directory.Permission{}, mapConstraint(err)
	}
	return perm, nil
}

func (s *Store) PermissionByCode(ctx context.Context, code string) (directory.Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, code, category, created_at from permissions where code=$1`, code)
	var perm directory.Permission
	if err := row.Scan(&perm.ID, &perm.Code, &perm.Category, &perm.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return directory.Permission{}, directory.ErrNotFound
		}
		return directory.Permission{}, err
	}
	return perm, nil
}

func (s *Store) DeletePermission(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where code=$1`, code)
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []directory.Permission) error {
	for _, perm := range perms {
		_, err := s.db.ExecContext(ctx,
			`insert into permissions(id, code, category, created_at)
			 values($1,$2,$3,$4) on conflict (code) do nothing`,
			perm.ID, perm.Code, perm.Category, perm.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ActiveAssignments(ctx context.Context, userID string) ([]directory.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select a.id, a.user_id, a.role_id, r.name, a.assigned_at, a.assigned_by, a.expires_at, a.active, a.revoked_at
		 from role_assignments a join roles r on r.id=a.role_id
		 where a.user_id=$1 and a.active order by a.assigned_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.RoleAssignment
	for rows.Next() {
		var (
			a          directory.RoleAssignment
			assignedBy sql.NullString
			expiresAt  sql.NullTime
			revokedAt  sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.RoleName, &a.AssignedAt,
			&assignedBy, &expiresAt, &a.Active, &revokedAt); err != nil {
			return nil, err
		}
		a.AssignedBy = assignedBy.String
		if expiresAt.Valid {
			t := expiresAt.Time
			a.ExpiresAt = &t
		}
		if revokedAt.Valid {
			t := revokedAt.Time
			a.RevokedAt = &t
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) ActiveGrants(ctx context.Context, roleID string) ([]directory.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.id, p.code, p.category, p.created_at
		 from role_grants g join permissions p on p.id=g.permission_id
		 where g.role_id=$1 and g.active order by p.code`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []directory.Permission
	for rows.Next() {
		var perm directory.Permission
		if err := rows.Scan(&perm.ID, &perm.Code, &perm.Category, &perm.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// InsertAssignment inserts an active assignment row. The partial unique
// index on (user_id, role_id) where active makes the check-and-insert
// atomic: when an active row already exists the insert affects zero
// rows and the call reports false without error.
func (s *Store) InsertAssignment(ctx context.Context, a directory.RoleAssignment) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`insert into role_assignments(id, user_id, role_id, assigned_at, assigned_by, expires_at, active)
		 values($1,$2,$3,$4,$5,$6,true)
		 on conflict (user_id, role_id) where active do nothing`,
		a.ID, a.UserID, a.RoleID, a.AssignedAt, nullString(a.AssignedBy), nullTime(a.ExpiresAt),
	)
	if err != nil {
		return false, mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) DeactivateAssignment(ctx context.Context, userID, roleID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update role_assignments set active=false, revoked_at=$3
		 where user_id=$1 and role_id=$2 and active`,
		userID, roleID, at,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) InsertGrant(ctx context.Context, g directory.RoleGrant) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`insert into role_grants(id, role_id, permission_id, assigned_at, assigned_by, active)
		 values($1,$2,$3,$4,$5,true)
		 on conflict (role_id, permission_id) where active do nothing`,
		g.ID, g.RoleID, g.PermissionID, g.AssignedAt, nullString(g.AssignedBy),
	)
	if err != nil {
		return false, mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) DeactivateGrant(ctx context.Context, roleID, permissionID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update role_grants set active=false, revoked_at=$3
		 where role_id=$1 and permission_id=$2 and active`,
		roleID, permissionID, at,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return directory.ErrConflict
		case pgForeignKeyViolation:
			return directory.ErrNotFound
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
