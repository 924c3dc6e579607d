package auth

import "errors"

var (
	// ErrDuplicateIdentity reports a signup against an email that is
	// already registered.
	ErrDuplicateIdentity = errors.New("auth: identity already exists")

	// ErrInvalidCredentials collapses "no such user" and "wrong
	// password" into one error so responses never reveal whether an
	// account exists.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidRefreshToken covers malformed, expired, and revoked
	// refresh tokens alike; the precise cause stays in the logs.
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")

	// ErrUnauthenticated is the single error surfaced for any failed
	// request authentication, regardless of cause.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrNotFound reports a lookup miss on the identity store.
	ErrNotFound = errors.New("auth: not found")

	// ErrInvalidInput reports malformed operator or client input.
	ErrInvalidInput = errors.New("auth: invalid input")
)
