package leave

import (
	"context"
	"time"

	"timeoff/internal/domain/identity"
)

type StoreAPI interface {
	Create(ctx context.Context, in NewRequest) (Request, error)
	Get(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, filter ListFilter, vis Visibility) ([]Request, int, error)
	// Transition moves a pending request to status. It fails with
	// ErrInvalidTransition when the row is no longer pending at write time.
	Transition(ctx context.Context, id string, status Status, actorID, comment string, at time.Time) (Request, error)
}

// Directory resolves identities for the workflow.
type Directory interface {
	ByID(ctx context.Context, id string) (identity.Identity, error)
}

// Notifier receives events after commit. Publish must not block.
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

// Auditor records workflow actions. Log must not block.
type Auditor interface {
	Log(ctx context.Context, actorID, action string, details map[string]string)
}
