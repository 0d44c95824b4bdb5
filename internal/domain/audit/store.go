package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const auditLockKey = "audit_log_chain"

const entryColumns = `id, COALESCE(actor_id::text, ''), action, details, ip, request_id, created_at, prev_hash, hash`

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) Append(ctx context.Context, build func(prev []byte) (Entry, error)) (Entry, error) {
	var out Entry
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, auditLockKey); err != nil {
			return fmt.Errorf("audit lock: %w", err)
		}
		prev := []byte{}
		err := tx.QueryRow(ctx, `SELECT hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&prev)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		e, err := build(prev)
		if err != nil {
			return err
		}
		details, err := json.Marshal(nonNil(e.Details))
		if err != nil {
			return err
		}
		var actor *string
		if e.ActorID != "" {
			actor = &e.ActorID
		}
		if e.PrevHash == nil {
			e.PrevHash = []byte{}
		}
		if err := tx.QueryRow(ctx, `
      INSERT INTO audit_log (actor_id, action, details, ip, request_id, created_at, prev_hash, hash)
      VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
      RETURNING id
    `, actor, e.Action, details, e.IP, e.RequestID, e.CreatedAt, e.PrevHash, e.Hash).Scan(&e.ID); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	where := " WHERE 1=1"
	var args []any
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		where += fmt.Sprintf(" AND actor_id::text = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where += fmt.Sprintf(" AND action = $%d", len(args))
	}
	var total int
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(1) FROM audit_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Limit, filter.Offset)
	rows, err := s.DB.Query(ctx, `SELECT `+entryColumns+` FROM audit_log`+where+
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (s *Store) Walk(ctx context.Context, fn func(Entry) error) error {
	rows, err := s.DB.Query(ctx, `SELECT `+entryColumns+` FROM audit_log ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var details []byte
	if err := row.Scan(&e.ID, &e.ActorID, &e.Action, &details, &e.IP, &e.RequestID, &e.CreatedAt, &e.PrevHash, &e.Hash); err != nil {
		return Entry{}, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return Entry{}, err
		}
	}
	if len(e.Details) == 0 {
		e.Details = nil
	}
	e.CreatedAt = Normalize(e.CreatedAt)
	return e, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
