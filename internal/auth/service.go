// Package auth orchestrates signup, login, token issuance, refresh,
// logout, and per-request authentication over the identity store, the
// directory, the token codec, and the revocation store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authcore.org/internal/ids"
	"authcore.org/internal/obs"
	"authcore.org/internal/revocation"
	"authcore.org/internal/token"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 14
)

// Service provides the authentication and authorization operations.
type Service struct {
	identities IdentityStore
	hasher     PasswordHasher
	resolver   *Resolver
	codec      *token.Codec
	revoked    revocation.Store

	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the Service from its collaborators.
func NewService(identities IdentityStore, hasher PasswordHasher, resolver *Resolver, codec *token.Codec, revoked revocation.Store, opts ...ServiceOption) (*Service, error) {
	if identities == nil || hasher == nil || resolver == nil || codec == nil || revoked == nil {
		return nil, errors.New("auth: all collaborators are required")
	}
	s := &Service{
		identities: identities,
		hasher:     hasher,
		resolver:   resolver,
		codec:      codec,
		revoked:    revoked,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TokenPair carries freshly issued access and refresh tokens with their
// expiry instants.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Signup registers a new identity and returns its principal. Any default
// roles are whatever the directory already holds for the new user id;
// this service assigns none itself.
func (s *Service) Signup(ctx context.Context, email, password string) (Principal, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Principal{}, err
	}
	if password == "" {
		return Principal{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	if _, err := s.identities.FindByEmail(ctx, email); err == nil {
		return Principal{}, ErrDuplicateIdentity
	} else if !errors.Is(err, ErrNotFound) {
		return Principal{}, fmt.Errorf("lookup identity: %w", err)
	}

	hash, err := s.hasher.Encode(password)
	if err != nil {
		return Principal{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	identity := &Identity{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.identities.Save(ctx, identity); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			return Principal{}, ErrDuplicateIdentity
		}
		return Principal{}, fmt.Errorf("save identity: %w", err)
	}

	principal, err := s.resolver.Resolve(ctx, identity.ID)
	if err != nil {
		return Principal{}, err
	}
	principal.Email = identity.Email
	return principal, nil
}

// Login verifies credentials and returns the live principal. A missing
// account and a wrong password produce the identical error.
func (s *Service) Login(ctx context.Context, email, password string) (Principal, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	if password == "" {
		return Principal{}, ErrInvalidCredentials
	}

	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, fmt.Errorf("lookup identity: %w", err)
	}
	if !s.hasher.Matches(password, identity.PasswordHash) {
		return Principal{}, ErrInvalidCredentials
	}

	principal, err := s.resolver.Resolve(ctx, identity.ID)
	if err != nil {
		return Principal{}, err
	}
	principal.Email = identity.Email
	return principal, nil
}

// IssueTokenPair signs an access token embedding the principal's current
// authority snapshot and a refresh token carrying identity only.
func (s *Service) IssueTokenPair(ctx context.Context, principal Principal) (TokenPair, error) {
	access, accessExp, err := s.codec.Issue(principal.Email, principal.UserID, token.KindAccess, principal.Authorities(), s.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := s.codec.Issue(principal.Email, principal.UserID, token.KindRefresh, nil, s.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	obs.ObserveTokenIssued(string(token.KindAccess))
	obs.ObserveTokenIssued(string(token.KindRefresh))
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh validates a refresh token and re-resolves the principal live,
// so the fresh access token reflects current roles rather than the
// snapshot in any earlier token. Malformed, expired, wrong-kind, and
// revoked tokens all fail with the same ErrInvalidRefreshToken.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Principal, string, time.Time, error) {
	claims, err := s.codec.Verify(refreshToken)
	if err != nil {
		s.logRejection("refresh", rejectionCause(err), claims)
		return Principal{}, "", time.Time{}, ErrInvalidRefreshToken
	}
	if claims.Kind() != token.KindRefresh {
		s.logRejection("refresh", "wrong_kind", claims)
		return Principal{}, "", time.Time{}, ErrInvalidRefreshToken
	}
	if s.revoked.IsRevoked(ctx, refreshToken) {
		s.logRejection("refresh", "revoked", claims)
		return Principal{}, "", time.Time{}, ErrInvalidRefreshToken
	}

	identity, err := s.identities.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logRejection("refresh", "unknown_subject", claims)
			return Principal{}, "", time.Time{}, ErrInvalidRefreshToken
		}
		return Principal{}, "", time.Time{}, fmt.Errorf("lookup identity: %w", err)
	}

	principal, err := s.resolver.Resolve(ctx, identity.ID)
	if err != nil {
		return Principal{}, "", time.Time{}, err
	}
	principal.Email = identity.Email

	access, accessExp, err := s.codec.Issue(principal.Email, principal.UserID, token.KindAccess, principal.Authorities(), s.accessTTL)
	if err != nil {
		return Principal{}, "", time.Time{}, fmt.Errorf("issue access token: %w", err)
	}
	obs.ObserveTokenIssued(string(token.KindAccess))
	return principal, access, accessExp, nil
}

// Logout revokes the presented token for the remainder of its lifetime.
// A missing or unresolvable token is a no-op, not an error: there is
// nothing to revoke. An expired token needs no record either, so the
// revocation store never sees a non-positive TTL write.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil
	}
	claims, _ := s.codec.Verify(rawToken)
	if claims == nil {
		// Malformed: nothing resolvable, nothing to revoke.
		return nil
	}
	ttl := s.codec.RemainingTTL(claims)
	if err := s.revoked.Revoke(ctx, rawToken, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if ttl > 0 {
		obs.ObserveRevocation()
	}
	return nil
}

// AuthenticateRequest verifies a bearer token, checks revocation, and
// resolves the live principal. Every failure surfaces as the opaque
// ErrUnauthenticated; the distinction between malformed, expired,
// revoked, and wrong-kind tokens exists only in logs and metrics, so
// responses cannot be used as a token-validity oracle.
func (s *Service) AuthenticateRequest(ctx context.Context, bearerToken string) (Principal, error) {
	claims, err := s.codec.Verify(bearerToken)
	if err != nil {
		cause := rejectionCause(err)
		s.logRejection("authenticate", cause, claims)
		obs.ObserveAuthentication(cause)
		return Principal{}, ErrUnauthenticated
	}
	if claims.Kind() != token.KindAccess {
		s.logRejection("authenticate", "wrong_kind", claims)
		obs.ObserveAuthentication("wrong_kind")
		return Principal{}, ErrUnauthenticated
	}
	if s.revoked.IsRevoked(ctx, bearerToken) {
		s.logRejection("authenticate", "revoked", claims)
		obs.ObserveAuthentication("revoked")
		return Principal{}, ErrUnauthenticated
	}

	// Authorization decisions use the live authority set, never the
	// snapshot embedded in the token.
	principal, err := s.resolver.Resolve(ctx, claims.UserID)
	if err != nil {
		obs.ObserveAuthentication("error")
		return Principal{}, fmt.Errorf("resolve principal: %w", err)
	}
	principal.Email = claims.Subject
	obs.ObserveAuthentication("ok")
	return principal, nil
}

func rejectionCause(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}

func (s *Service) logRejection(op, cause string, claims *token.Claims) {
	entry := map[string]any{
		"level": "warn",
		"msg":   "token rejected",
		"op":    op,
		"cause": cause,
	}
	if claims != nil {
		entry["user_id"] = claims.UserID
	}
	obs.Log(entry)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return email, nil
}
