package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores entries in kv_entries and window hits in rate_limit_events.
// Expired rows are removed by Purge.
type Postgres struct {
	DB *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{DB: db}
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.DB.QueryRow(ctx, `
    SELECT value FROM kv_entries
    WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())
  `, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get: %w", err)
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := p.DB.Exec(ctx, `
    INSERT INTO kv_entries (key, value, expires_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
  `, key, value, expiresAt(ttl))
	if err != nil {
		return fmt.Errorf("kv set: %w", err)
	}
	return nil
}

// SetNX takes over an expired row so stale entries awaiting Purge do not
// block a fresh write.
func (p *Postgres) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	tag, err := p.DB.Exec(ctx, `
    INSERT INTO kv_entries (key, value, expires_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
    WHERE kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= now()
  `, key, value, expiresAt(ttl))
	if err != nil {
		return false, fmt.Errorf("kv setnx: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.DB.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

func (p *Postgres) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var raw string
	err := p.DB.QueryRow(ctx, `
    INSERT INTO kv_entries (key, value, expires_at)
    VALUES ($1, '1', $2)
    ON CONFLICT (key) DO UPDATE SET
      value = CASE
        WHEN kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= now() THEN '1'
        ELSE (kv_entries.value::bigint + 1)::text
      END,
      expires_at = CASE
        WHEN kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= now() THEN EXCLUDED.expires_at
        ELSE kv_entries.expires_at
      END
    RETURNING value
  `, key, expiresAt(ttl)).Scan(&raw)
	if err != nil {
		return 0, fmt.Errorf("kv incr: %w", err)
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (p *Postgres) Window(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (WindowResult, error) {
	tx, err := p.DB.Begin(ctx)
	if err != nil {
		return WindowResult{}, fmt.Errorf("kv window: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return WindowResult{}, fmt.Errorf("kv window lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM rate_limit_events WHERE key = $1 AND at <= $2`, key, now.Add(-window)); err != nil {
		return WindowResult{}, fmt.Errorf("kv window purge: %w", err)
	}
	var count int
	var oldest *time.Time
	if err := tx.QueryRow(ctx, `SELECT COUNT(1), MIN(at) FROM rate_limit_events WHERE key = $1`, key).Scan(&count, &oldest); err != nil {
		return WindowResult{}, fmt.Errorf("kv window count: %w", err)
	}
	res := WindowResult{Count: count}
	if oldest != nil {
		res.Oldest = *oldest
	}
	if count >= limit {
		if err := tx.Commit(ctx); err != nil {
			return WindowResult{}, err
		}
		return res, nil
	}
	if _, err := tx.Exec(ctx, `INSERT INTO rate_limit_events (key, at) VALUES ($1, $2)`, key, now); err != nil {
		return WindowResult{}, fmt.Errorf("kv window insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return WindowResult{}, err
	}
	res.Allowed = true
	res.Count = count + 1
	if res.Oldest.IsZero() {
		res.Oldest = now
	}
	return res, nil
}

// Purge removes expired entries and window hits older than a day.
func (p *Postgres) Purge(ctx context.Context, now time.Time) (int64, error) {
	entries, err := p.DB.Exec(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("kv purge entries: %w", err)
	}
	events, err := p.DB.Exec(ctx, `DELETE FROM rate_limit_events WHERE at <= $1`, now.Add(-24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("kv purge events: %w", err)
	}
	return entries.RowsAffected() + events.RowsAffected(), nil
}

func (p *Postgres) Close() error {
	return nil
}

func expiresAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}
