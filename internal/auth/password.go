package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes and verifies raw passwords.
type PasswordHasher interface {
	Encode(raw string) (string, error)
	Matches(raw, hash string) bool
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

// Encode hashes the plaintext password.
func (h BcryptHasher) Encode(raw string) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost())
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Matches compares a plaintext password with a stored hash.
func (h BcryptHasher) Matches(raw, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
