package org

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"timeoff/internal/domain/identity"
)

// hierarchyLockKey serialises supervisor-edge writes across instances.
const hierarchyLockKey = "org_hierarchy"

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) Get(ctx context.Context, id string) (identity.Identity, error) {
	if !identity.ValidID(id) {
		return identity.Identity{}, identity.ErrNotFound
	}
	return identity.Scan(s.DB.QueryRow(ctx, `SELECT `+identity.Columns()+` FROM users WHERE id = $1::uuid`, id))
}

func (s *Store) DirectReports(ctx context.Context, id string) ([]identity.Identity, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+identity.Columns()+`
    FROM users
    WHERE supervisor_id = $1::uuid
    ORDER BY last_name, first_name
  `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []identity.Identity
	for rows.Next() {
		i, err := identity.Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) Reassign(ctx context.Context, sel Selection, supervisorID string, check func(Snapshot, []string) error) (int, error) {
	for _, id := range sel.IDs {
		if !identity.ValidID(id) {
			return 0, identity.ErrNotFound
		}
	}
	if supervisorID != "" && !identity.ValidID(supervisorID) {
		return 0, ErrSupervisorNotFound
	}
	var moved int
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, hierarchyLockKey); err != nil {
			return fmt.Errorf("hierarchy lock: %w", err)
		}
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		ids := sel.IDs
		if sel.ReportsOf != "" {
			ids = ids[:0:0]
			for id, node := range snap {
				if node.ParentID == sel.ReportsOf {
					ids = append(ids, id)
				}
			}
		}
		if err := check(snap, ids); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		var supervisor *string
		if supervisorID != "" {
			supervisor = &supervisorID
		}
		tag, err := tx.Exec(ctx, `
      UPDATE users SET supervisor_id = $2::uuid, updated_at = now()
      WHERE id = ANY($1::uuid[])
    `, ids, supervisor)
		if err != nil {
			return err
		}
		moved = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

func (s *Store) Dependents(ctx context.Context, id string) (Dependents, error) {
	if !identity.ValidID(id) {
		return Dependents{}, identity.ErrNotFound
	}
	return countDependents(ctx, s.DB, id)
}

func (s *Store) Delete(ctx context.Context, id string, check func(Dependents) error) error {
	if !identity.ValidID(id) {
		return identity.ErrNotFound
	}
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, hierarchyLockKey); err != nil {
			return fmt.Errorf("hierarchy lock: %w", err)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1::uuid FOR UPDATE)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return identity.ErrNotFound
		}
		deps, err := countDependents(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := check(deps); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM users WHERE id = $1::uuid`, id)
		return err
	})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countDependents(ctx context.Context, q querier, id string) (Dependents, error) {
	var d Dependents
	err := q.QueryRow(ctx, `
    SELECT
      (SELECT COUNT(1) FROM users WHERE supervisor_id = $1::uuid),
      (SELECT COUNT(1) FROM leave_requests WHERE requester_id = $1::uuid),
      (SELECT COUNT(1) FROM leave_requests WHERE approver_id = $1::uuid OR decided_by = $1::uuid)
  `, id).Scan(&d.DirectReports, &d.AsRequester, &d.AsApprover)
	return d, err
}

func loadSnapshot(ctx context.Context, tx pgx.Tx) (Snapshot, error) {
	rows, err := tx.Query(ctx, `SELECT id::text, COALESCE(supervisor_id::text, ''), is_active FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	snap := Snapshot{}
	for rows.Next() {
		var id string
		var node Node
		if err := rows.Scan(&id, &node.ParentID, &node.Active); err != nil {
			return nil, err
		}
		snap[id] = node
	}
	return snap, rows.Err()
}
