package identity

import (
	"context"
	"time"
)

type StoreAPI interface {
	ByID(ctx context.Context, id string) (Identity, error)
	ByEmail(ctx context.Context, email string) (Identity, error)
	List(ctx context.Context, filter ListFilter) ([]Identity, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, in NewIdentity) (Identity, error)
	Update(ctx context.Context, id string, patch Patch) (Identity, error)
	// SetPasswordHash replaces the digest and invalidates issued tokens.
	SetPasswordHash(ctx context.Context, id, hash string) (int, error)
	IncrementTokenVersion(ctx context.Context, id string) (int, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
