package org

import (
	"context"

	"timeoff/internal/domain/identity"
)

type StoreAPI interface {
	Get(ctx context.Context, id string) (identity.Identity, error)
	DirectReports(ctx context.Context, id string) ([]identity.Identity, error)
	// Reassign locks the hierarchy, resolves sel, calls check with the
	// snapshot and the resolved ids, and writes only if check returns nil.
	Reassign(ctx context.Context, sel Selection, supervisorID string, check func(Snapshot, []string) error) (int, error)
	Dependents(ctx context.Context, id string) (Dependents, error)
	// Delete removes id if check passes against its dependents, atomically.
	Delete(ctx context.Context, id string, check func(Dependents) error) error
}
