package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"timeoff/internal/domain/identity"
	"timeoff/internal/platform/metrics"
)

// Principal is an authenticated caller. Role is read from the live identity.
type Principal struct {
	ID        string
	Email     string
	Role      identity.Role
	TokenID   string
	ExpiresAt time.Time
	Identity  identity.Identity
}

func (p Principal) IsAdmin() bool {
	return p.Role == identity.RoleAdmin
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  identity.Identity
}

type Service struct {
	identities identity.StoreAPI
	hasher     *Hasher
	tokens     *Tokens
	registry   *Registry
	metrics    *metrics.Collector
	now        func() time.Time
}

func NewService(identities identity.StoreAPI, hasher *Hasher, tokens *Tokens, registry *Registry, collector *metrics.Collector) *Service {
	return &Service{
		identities: identities,
		hasher:     hasher,
		tokens:     tokens,
		registry:   registry,
		metrics:    collector,
		now:        time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Hasher() *Hasher {
	return s.hasher
}

// Login never tells a missing account from a wrong password. A disabled
// account is reported only after its password verifies.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	who, err := s.identities.ByEmail(ctx, identity.NormalizeEmail(email))
	if errors.Is(err, identity.ErrNotFound) {
		s.hasher.VerifyDummy(password)
		s.metrics.LoginFailure()
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		s.hasher.VerifyDummy(password)
		return LoginResult{}, fmt.Errorf("load identity: %w", err)
	}

	ok, err := s.hasher.Verify(password, who.PasswordHash)
	if err != nil {
		var formatErr *CredentialFormatError
		if errors.As(err, &formatErr) {
			slog.Error("stored credential unreadable", "component", "auth", "identityId", who.ID, "err", err)
		}
		s.metrics.LoginFailure()
		return LoginResult{}, ErrInvalidCredentials
	}
	if !ok {
		s.metrics.LoginFailure()
		return LoginResult{}, ErrInvalidCredentials
	}
	if !who.Active {
		return LoginResult{}, ErrAccountDisabled
	}

	issued, err := s.tokens.Issue(who)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	if err := s.identities.TouchLastLogin(ctx, who.ID, s.now()); err != nil {
		slog.Warn("last login update failed", "component", "auth", "identityId", who.ID, "err", err)
	}
	return LoginResult{Token: issued.Token, ExpiresAt: issued.ExpiresAt, Identity: who}, nil
}

// Authenticate runs signature and expiry checks, the revocation lookup and
// the live identity comparison. A registry failure rejects the token.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	revoked, err := s.registry.IsRevoked(ctx, claims.ID)
	if err != nil {
		slog.Warn("revocation check failed, rejecting token", "component", "auth", "err", err)
		s.metrics.RevocationFailure()
		return Principal{}, ErrTokenRevoked
	}
	if revoked {
		return Principal{}, ErrTokenRevoked
	}

	who, err := s.identities.ByID(ctx, claims.Subject)
	if errors.Is(err, identity.ErrNotFound) {
		return Principal{}, ErrTokenInvalidated
	}
	if err != nil {
		return Principal{}, fmt.Errorf("load identity: %w", err)
	}
	if !who.Active || who.TokenVersion != claims.Version {
		return Principal{}, ErrTokenInvalidated
	}
	return Principal{
		ID:        who.ID,
		Email:     who.Email,
		Role:      who.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		Identity:  who,
	}, nil
}

// Logout revokes the identifier of any correctly signed token, expired or
// not. Tokens that fail signature checks are ignored. Returns the subject
// of the revoked token, if any.
func (s *Service) Logout(ctx context.Context, token string) (string, error) {
	claims, err := s.tokens.VerifySignature(token)
	if err != nil {
		return "", nil
	}
	ttl := Remaining(claims, s.now())
	if ttl == 0 {
		// already expired, nothing left to revoke
		return claims.Subject, nil
	}
	if err := s.registry.Revoke(ctx, claims.ID, ttl); err != nil {
		s.metrics.RevocationFailure()
		return "", err
	}
	return claims.Subject, nil
}

func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	who, err := s.identities.ByID(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(current, who.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	return s.SetPassword(ctx, id, next)
}

// SetPassword replaces the password and invalidates all issued tokens.
func (s *Service) SetPassword(ctx context.Context, id, next string) error {
	if err := identity.ValidatePassword(next); err != nil {
		return err
	}
	digest, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if _, err := s.identities.SetPasswordHash(ctx, id, digest); err != nil {
		return err
	}
	return nil
}

// RevokeAll bumps the token version of id.
func (s *Service) RevokeAll(ctx context.Context, id string) error {
	_, err := s.registry.BumpVersion(ctx, id)
	return err
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrTokenMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrTokenInvalidFormat
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrTokenInvalidFormat
	}
	return token, nil
}
