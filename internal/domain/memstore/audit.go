package memstore

import (
	"context"
	"maps"

	"timeoff/internal/domain/audit"
)

// Audit implements audit.StoreAPI as an append-only slice.
type Audit struct {
	db *DB
}

var _ audit.StoreAPI = (*Audit)(nil)

func (s *Audit) Append(_ context.Context, build func(prev []byte) (audit.Entry, error)) (audit.Entry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	prev := []byte{}
	if n := len(s.db.entries); n > 0 {
		prev = s.db.entries[n-1].Hash
	}
	e, err := build(prev)
	if err != nil {
		return audit.Entry{}, err
	}
	e.ID = int64(len(s.db.entries) + 1)
	e.Details = maps.Clone(e.Details)
	s.db.entries = append(s.db.entries, e)
	return e, nil
}

func (s *Audit) List(_ context.Context, filter audit.Filter) ([]audit.Entry, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var matched []audit.Entry
	for i := len(s.db.entries) - 1; i >= 0; i-- {
		e := s.db.entries[i]
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (s *Audit) Walk(_ context.Context, fn func(audit.Entry) error) error {
	s.db.mu.Lock()
	entries := append([]audit.Entry(nil), s.db.entries...)
	s.db.mu.Unlock()
	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}
