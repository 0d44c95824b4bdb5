package memstore

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"timeoff/internal/domain/identity"
)

// Identities implements identity.StoreAPI.
type Identities struct {
	db *DB
}

var _ identity.StoreAPI = (*Identities)(nil)

func (s *Identities) ByID(_ context.Context, id string) (identity.Identity, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	return u, nil
}

func (s *Identities) ByEmail(_ context.Context, email string) (identity.Identity, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if u, ok := s.db.byEmail(identity.NormalizeEmail(email)); ok {
		return u, nil
	}
	return identity.Identity{}, identity.ErrNotFound
}

func (s *Identities) List(_ context.Context, filter identity.ListFilter) ([]identity.Identity, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []identity.Identity
	for _, u := range s.db.users {
		if len(filter.Roles) > 0 && !slices.Contains(filter.Roles, u.Role) {
			continue
		}
		if filter.ActiveOnly && !u.Active {
			continue
		}
		out = append(out, u)
	}
	sortIdentities(out)
	return out, nil
}

func (s *Identities) Count(context.Context) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.users), nil
}

func (s *Identities) Create(_ context.Context, in identity.NewIdentity) (identity.Identity, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	email := identity.NormalizeEmail(in.Email)
	if _, taken := s.db.byEmail(email); taken {
		return identity.Identity{}, identity.ErrEmailTaken
	}
	if in.SupervisorID != "" {
		if _, ok := s.db.users[in.SupervisorID]; !ok {
			return identity.Identity{}, identity.ErrNotFound
		}
	}
	now := s.db.now().UTC()
	u := identity.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         in.Role,
		SupervisorID: in.SupervisorID,
		Active:       in.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.db.users[u.ID] = u
	return u, nil
}

func (s *Identities) Update(_ context.Context, id string, patch identity.Patch) (identity.Identity, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	if patch.Email != nil {
		email := identity.NormalizeEmail(*patch.Email)
		if other, taken := s.db.byEmail(email); taken && other.ID != id {
			return identity.Identity{}, identity.ErrEmailTaken
		}
		u.Email = email
	}
	if patch.FirstName != nil {
		u.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		u.LastName = *patch.LastName
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.Active != nil {
		if u.Active && !*patch.Active {
			u.TokenVersion++
		}
		u.Active = *patch.Active
	}
	u.UpdatedAt = s.db.now().UTC()
	s.db.users[id] = u
	return u, nil
}

func (s *Identities) SetPasswordHash(_ context.Context, id, hash string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return 0, identity.ErrNotFound
	}
	u.PasswordHash = hash
	u.TokenVersion++
	u.UpdatedAt = s.db.now().UTC()
	s.db.users[id] = u
	return u.TokenVersion, nil
}

func (s *Identities) IncrementTokenVersion(_ context.Context, id string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return 0, identity.ErrNotFound
	}
	u.TokenVersion++
	s.db.users[id] = u
	return u.TokenVersion, nil
}

func (s *Identities) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if u, ok := s.db.users[id]; ok {
		at := at.UTC()
		u.LastLogin = &at
		s.db.users[id] = u
	}
	return nil
}

func (db *DB) byEmail(email string) (identity.Identity, bool) {
	for _, u := range db.users {
		if u.Email == email {
			return u, true
		}
	}
	return identity.Identity{}, false
}

func sortIdentities(list []identity.Identity) {
	slices.SortFunc(list, func(a, b identity.Identity) int {
		if c := strings.Compare(a.LastName, b.LastName); c != 0 {
			return c
		}
		if c := strings.Compare(a.FirstName, b.FirstName); c != 0 {
			return c
		}
		return strings.Compare(a.Email, b.Email)
	})
}
