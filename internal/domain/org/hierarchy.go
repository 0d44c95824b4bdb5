package org

import (
	"context"
	"errors"
	"fmt"

	"timeoff/internal/domain/identity"
)

type Hierarchy struct {
	store StoreAPI
}

func New(store StoreAPI) *Hierarchy {
	return &Hierarchy{store: store}
}

// SupervisorOf returns nil when the identity is top-level.
func (h *Hierarchy) SupervisorOf(ctx context.Context, id string) (*identity.Identity, error) {
	who, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if who.SupervisorID == "" {
		return nil, nil
	}
	sup, err := h.store.Get(ctx, who.SupervisorID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sup, nil
}

func (h *Hierarchy) DirectReportsOf(ctx context.Context, id string) ([]identity.Identity, error) {
	if _, err := h.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return h.store.DirectReports(ctx, id)
}

// Reassign points every id at supervisorID ("" clears the edge). Nothing
// changes unless the whole batch validates. The count is of distinct
// identities moved.
func (h *Hierarchy) Reassign(ctx context.Context, ids []string, supervisorID string) (int, error) {
	ids = distinct(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	return h.store.Reassign(ctx, Selection{IDs: ids}, supervisorID, validator(supervisorID))
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ReassignReports moves all direct reports of fromID to supervisorID.
func (h *Hierarchy) ReassignReports(ctx context.Context, fromID, supervisorID string) (int, error) {
	if _, err := h.store.Get(ctx, fromID); err != nil {
		return 0, err
	}
	return h.store.Reassign(ctx, Selection{ReportsOf: fromID}, supervisorID, validator(supervisorID))
}

func (h *Hierarchy) CanDelete(ctx context.Context, id string) (bool, error) {
	deps, err := h.store.Dependents(ctx, id)
	if err != nil {
		return false, err
	}
	return deps.None(), nil
}

func (h *Hierarchy) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfDelete
	}
	return h.store.Delete(ctx, id, func(d Dependents) error {
		if !d.None() {
			return fmt.Errorf("%w: %d reports, %d requests, %d approvals", ErrHasDependents, d.DirectReports, d.AsRequester, d.AsApprover)
		}
		return nil
	})
}

func validator(supervisorID string) func(Snapshot, []string) error {
	return func(snap Snapshot, moving []string) error {
		for _, id := range moving {
			if _, ok := snap[id]; !ok {
				return identity.ErrNotFound
			}
		}
		if supervisorID == "" {
			return nil
		}
		sup, ok := snap[supervisorID]
		if !ok {
			return ErrSupervisorNotFound
		}
		if !sup.Active {
			return ErrSupervisorInactive
		}
		return CheckCycle(snap, moving, supervisorID)
	}
}

// CheckCycle walks the ancestors of supervisorID after the proposed edges
// are applied; reaching any moving id, or looping, is a cycle.
func CheckCycle(snap Snapshot, moving []string, supervisorID string) error {
	movingSet := make(map[string]struct{}, len(moving))
	for _, id := range moving {
		movingSet[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(snap))
	for cur := supervisorID; cur != ""; {
		if _, ok := movingSet[cur]; ok {
			return ErrCycleDetected
		}
		if _, ok := seen[cur]; ok {
			return ErrCycleDetected
		}
		seen[cur] = struct{}{}
		cur = snap[cur].ParentID
	}
	return nil
}
