// Package token encodes, signs, and verifies the bearer tokens issued by
// the authorization service.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens via the token_type
// claim.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const defaultIssuer = "authcore"

var (
	// ErrMalformed indicates the token could not be decoded or its
	// signature did not verify.
	ErrMalformed = errors.New("token: malformed")

	// ErrExpired indicates a well-formed, correctly signed token whose
	// expiry instant has passed. Verify still returns the decoded claims
	// alongside this error so callers can read the subject for revocation
	// bookkeeping; authorization callers must treat it as a hard failure.
	ErrExpired = errors.New("token: expired")
)

// Claims is the signed payload carried by every token.
type Claims struct {
	UserID      string   `json:"uid"`
	Authorities []string `json:"authorities,omitempty"`
	TokenType   string   `json:"token_type"`
	jwt.RegisteredClaims
}

// Kind returns the token kind recorded in the token_type claim.
func (c *Claims) Kind() Kind {
	return Kind(c.TokenType)
}

// Codec signs and verifies tokens with a shared HS256 secret.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures Codec behavior.
type Option func(*Codec)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		if s := strings.TrimSpace(issuer); s != "" {
			c.issuer = s
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec for the given shared secret.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token: secret is required")
	}
	c := &Codec{
		secret: []byte(secret),
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token of the given kind. Access tokens embed the supplied
// authority snapshot; refresh tokens carry identity only.
func (c *Codec) Issue(subject, userID string, kind Kind, authorities []string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	userID = strings.TrimSpace(userID)
	if subject == "" || userID == "" {
		return "", time.Time{}, errors.New("token: subject and user id are required")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", time.Time{}, errors.New("token: unsupported kind")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token: ttl must be greater than zero")
	}

	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID:    userID,
		TokenType: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if kind == KindAccess {
		claims.Authorities = authorities
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks the token signature and claims. On a valid signature past
// its expiry instant it returns the decoded claims together with
// ErrExpired; every other failure returns ErrMalformed and no claims.
func (c *Codec) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformed
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{},
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, ErrMalformed
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }),
		jwt.WithIssuer(c.issuer),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		// Expired-but-well-formed: the signature verified and only the
		// exp check failed, so the claims are trustworthy.
		if errors.Is(err, jwt.ErrTokenExpired) &&
			!errors.Is(err, jwt.ErrTokenSignatureInvalid) &&
			parsed != nil {
			if claims, ok := parsed.Claims.(*Claims); ok && claims.Subject != "" {
				return claims, ErrExpired
			}
		}
		return nil, ErrMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// RemainingTTL reports how long the token stays valid, clamped to zero
// once the expiry instant has passed.
func (c *Codec) RemainingTTL(claims *Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	remaining := claims.ExpiresAt.Time.Sub(c.now().UTC())
	if remaining < 0 {
		return 0
	}
	return remaining
}
