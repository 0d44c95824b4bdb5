package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"timeoff/internal/domain/identity"
	"timeoff/internal/domain/leave"
)

// Requests implements leave.StoreAPI.
type Requests struct {
	db *DB
}

var _ leave.StoreAPI = (*Requests)(nil)

func (s *Requests) Create(_ context.Context, in leave.NewRequest) (leave.Request, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.users[in.RequesterID]; !ok {
		return leave.Request{}, identity.ErrNotFound
	}
	if _, ok := s.db.users[in.ApproverID]; !ok {
		return leave.Request{}, leave.ErrNoSupervisor
	}
	r := leave.Request{
		ID:          uuid.NewString(),
		RequesterID: in.RequesterID,
		ApproverID:  in.ApproverID,
		Date:        in.Date,
		Start:       in.Start,
		End:         in.End,
		Reason:      in.Reason,
		Status:      leave.StatusPending,
		CreatedAt:   in.CreatedAt.UTC(),
	}
	s.db.requests[r.ID] = r
	return r, nil
}

func (s *Requests) Get(_ context.Context, id string) (leave.Request, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.requests[id]
	if !ok {
		return leave.Request{}, leave.ErrNotFound
	}
	return r, nil
}

func (s *Requests) List(_ context.Context, filter leave.ListFilter, vis leave.Visibility) ([]leave.Request, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var matched []leave.Request
	for _, r := range s.db.requests {
		if !vis.All {
			mine := r.RequesterID == vis.SubjectID
			if vis.AsApprover {
				mine = mine || r.ApproverID == vis.SubjectID
			}
			if !mine {
				continue
			}
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.RequesterID != "" && r.RequesterID != filter.RequesterID {
			continue
		}
		if filter.ApproverID != "" && r.ApproverID != filter.ApproverID {
			continue
		}
		matched = append(matched, r)
	}
	slices.SortFunc(matched, func(a, b leave.Request) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
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

func (s *Requests) Transition(_ context.Context, id string, status leave.Status, actorID, comment string, at time.Time) (leave.Request, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.requests[id]
	if !ok {
		return leave.Request{}, leave.ErrNotFound
	}
	if r.Status != leave.StatusPending {
		return leave.Request{}, leave.ErrInvalidTransition
	}
	r.Status = status
	r.Comment = comment
	if status != leave.StatusCancelled {
		decidedAt := at.UTC()
		r.DecidedBy = actorID
		r.DecidedAt = &decidedAt
	}
	s.db.requests[id] = r
	return r, nil
}
