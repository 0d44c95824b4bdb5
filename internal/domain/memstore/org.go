package memstore

import (
	"context"

	"timeoff/internal/domain/identity"
	"timeoff/internal/domain/org"
)

// Org implements org.StoreAPI over the shared user table.
type Org struct {
	db *DB
}

var _ org.StoreAPI = (*Org)(nil)

func (s *Org) Get(ctx context.Context, id string) (identity.Identity, error) {
	return s.db.Identities().ByID(ctx, id)
}

func (s *Org) DirectReports(_ context.Context, id string) ([]identity.Identity, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []identity.Identity
	for _, u := range s.db.users {
		if u.SupervisorID == id {
			out = append(out, u)
		}
	}
	sortIdentities(out)
	return out, nil
}

func (s *Org) Reassign(_ context.Context, sel org.Selection, supervisorID string, check func(org.Snapshot, []string) error) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	snap := make(org.Snapshot, len(s.db.users))
	for id, u := range s.db.users {
		snap[id] = org.Node{ParentID: u.SupervisorID, Active: u.Active}
	}
	ids := sel.IDs
	if sel.ReportsOf != "" {
		ids = nil
		for id, node := range snap {
			if node.ParentID == sel.ReportsOf {
				ids = append(ids, id)
			}
		}
	}
	if err := check(snap, ids); err != nil {
		return 0, err
	}
	now := s.db.now().UTC()
	moved := 0
	for _, id := range ids {
		u := s.db.users[id]
		u.SupervisorID = supervisorID
		u.UpdatedAt = now
		s.db.users[id] = u
		moved++
	}
	return moved, nil
}

func (s *Org) Dependents(_ context.Context, id string) (org.Dependents, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.users[id]; !ok {
		return org.Dependents{}, identity.ErrNotFound
	}
	return s.db.dependents(id), nil
}

func (s *Org) Delete(_ context.Context, id string, check func(org.Dependents) error) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.users[id]; !ok {
		return identity.ErrNotFound
	}
	if err := check(s.db.dependents(id)); err != nil {
		return err
	}
	delete(s.db.users, id)
	return nil
}

func (db *DB) dependents(id string) org.Dependents {
	var d org.Dependents
	for _, u := range db.users {
		if u.SupervisorID == id {
			d.DirectReports++
		}
	}
	for _, r := range db.requests {
		if r.RequesterID == id {
			d.AsRequester++
		}
		if r.ApproverID == id || r.DecidedBy == id {
			d.AsApprover++
		}
	}
	return d
}
