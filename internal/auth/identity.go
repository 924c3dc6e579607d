package auth

import (
	"context"
	"time"
)

// Identity is the stored account record. Password hashes never leave
// this package's collaborators.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdentityStore is the external identity collaborator. Save must fail
// with ErrDuplicateIdentity when the email is already registered, so
// concurrent signups cannot race past the existence check.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	Save(ctx context.Context, identity *Identity) error
}
