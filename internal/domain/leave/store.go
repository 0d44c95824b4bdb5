package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"timeoff/internal/domain/identity"
)

const requestColumns = `
  id::text, requester_id::text, approver_id::text, leave_date, time_out, time_return, reason, status,
  approver_comment, COALESCE(decided_by::text, ''), decided_at, created_at`

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) Create(ctx context.Context, in NewRequest) (Request, error) {
	return scanRequest(s.DB.QueryRow(ctx, `
    INSERT INTO leave_requests (requester_id, approver_id, leave_date, time_out, time_return, reason, status, created_at)
    VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, 'pending', $7)
    RETURNING `+requestColumns,
		in.RequesterID, in.ApproverID, in.Date.Time, toPGTime(in.Start), toPGTime(in.End), in.Reason, in.CreatedAt))
}

func (s *Store) Get(ctx context.Context, id string) (Request, error) {
	if !identity.ValidID(id) {
		return Request{}, ErrNotFound
	}
	return scanRequest(s.DB.QueryRow(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = $1::uuid`, id))
}

func (s *Store) List(ctx context.Context, filter ListFilter, vis Visibility) ([]Request, int, error) {
	where := " WHERE 1=1"
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !vis.All {
		subject := arg(vis.SubjectID)
		if vis.AsApprover {
			where += " AND (requester_id = " + subject + "::uuid OR approver_id = " + subject + "::uuid)"
		} else {
			where += " AND requester_id = " + subject + "::uuid"
		}
	}
	if filter.Status != "" {
		where += " AND status = " + arg(string(filter.Status))
	}
	if filter.RequesterID != "" {
		if !identity.ValidID(filter.RequesterID) {
			return nil, 0, nil
		}
		where += " AND requester_id = " + arg(filter.RequesterID) + "::uuid"
	}
	if filter.ApproverID != "" {
		if !identity.ValidID(filter.ApproverID) {
			return nil, 0, nil
		}
		where += " AND approver_id = " + arg(filter.ApproverID) + "::uuid"
	}

	var total int
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(1) FROM leave_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + requestColumns + ` FROM leave_requests` + where +
		" ORDER BY created_at DESC LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Transition is a single-row compare-and-set on status = 'pending'.
func (s *Store) Transition(ctx context.Context, id string, status Status, actorID, comment string, at time.Time) (Request, error) {
	if !identity.ValidID(id) {
		return Request{}, ErrNotFound
	}
	var decidedBy *string
	var decidedAt *time.Time
	if status != StatusCancelled {
		decidedBy = &actorID
		decidedAt = &at
	}
	updated, err := scanRequest(s.DB.QueryRow(ctx, `
    UPDATE leave_requests
    SET status = $2, decided_by = $3::uuid, decided_at = $4, approver_comment = $5, updated_at = $6
    WHERE id = $1::uuid AND status = 'pending'
    RETURNING `+requestColumns,
		id, string(status), decidedBy, decidedAt, comment, at))
	if errors.Is(err, ErrNotFound) {
		var exists bool
		if err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leave_requests WHERE id = $1::uuid)`, id).Scan(&exists); err != nil {
			return Request{}, err
		}
		if exists {
			return Request{}, ErrInvalidTransition
		}
		return Request{}, ErrNotFound
	}
	return updated, err
}

func scanRequest(row pgx.Row) (Request, error) {
	var r Request
	var date time.Time
	var start, end pgtype.Time
	var status string
	err := row.Scan(&r.ID, &r.RequesterID, &r.ApproverID, &date, &start, &end, &r.Reason, &status,
		&r.Comment, &r.DecidedBy, &r.DecidedAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, err
	}
	r.Date = NewDate(date.Year(), date.Month(), date.Day())
	r.Start = fromPGTime(start)
	r.End = fromPGTime(end)
	r.Status = Status(status)
	return r, nil
}

func toPGTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

func fromPGTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}
