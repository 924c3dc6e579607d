package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"authcore.org/internal/ids"
)

var _ IdentityStore = (*PGIdentityStore)(nil)

const pgUniqueViolation = "23505"

// PGIdentityStore implements IdentityStore using PostgreSQL.
type PGIdentityStore struct {
	db *sql.DB
}

func NewPGIdentityStore(db *sql.DB) *PGIdentityStore {
	return &PGIdentityStore{db: db}
}

func (s *PGIdentityStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, created_at, updated_at from identities where email=$1`, email)
	return scanIdentity(row)
}

func (s *PGIdentityStore) FindByID(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, created_at, updated_at from identities where id=$1`, id)
	return scanIdentity(row)
}

// Save inserts a new identity. The unique index on email turns a racing
// duplicate into ErrDuplicateIdentity rather than a raw driver error.
func (s *PGIdentityStore) Save(ctx context.Context, identity *Identity) error {
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into identities(id, email, password_hash, created_at, updated_at)
		 values($1,$2,$3,$4,$5)`,
		identity.ID, identity.Email, identity.PasswordHash, identity.CreatedAt, identity.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateIdentity
	}
	return err
}

func scanIdentity(row *sql.Row) (*Identity, error) {
	var identity Identity
	err := row.Scan(&identity.ID, &identity.Email, &identity.PasswordHash,
		&identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &identity, nil
}
