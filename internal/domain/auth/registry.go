package auth

import (
	"context"
	"fmt"
	"time"

	"timeoff/internal/platform/kv"
)

const revokedPrefix = "revoked:"

// VersionBumper increments an identity's token_version.
type VersionBumper interface {
	IncrementTokenVersion(ctx context.Context, id string) (int, error)
}

// Registry records revoked token identifiers in the shared kv store.
// With the in-memory backend a revocation is visible only to this process.
type Registry struct {
	store    kv.Store
	versions VersionBumper
	timeout  time.Duration
	now      func() time.Time
}

func NewRegistry(store kv.Store, versions VersionBumper, timeout time.Duration) *Registry {
	return &Registry{store: store, versions: versions, timeout: timeout, now: time.Now}
}

func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Revoke marks tokenID revoked for ttl, bounded by the full token lifetime.
func (r *Registry) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 || ttl > DefaultTokenTTL {
		ttl = DefaultTokenTTL
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	until := r.now().Add(ttl).UTC().Format(time.RFC3339)
	if err := r.store.Set(ctx, revokedPrefix+tokenID, until, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *Registry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, ok, err := r.store.Get(ctx, revokedPrefix+tokenID)
	if err != nil {
		return false, fmt.Errorf("revocation lookup: %w", err)
	}
	return ok, nil
}

// BumpVersion invalidates every token issued to id before the call.
func (r *Registry) BumpVersion(ctx context.Context, id string) (int, error) {
	return r.versions.IncrementTokenVersion(ctx, id)
}

func (r *Registry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
