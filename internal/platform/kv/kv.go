// Package kv is the shared key/value backing store for revocations and
// rate-limit counters. Backends: in-process memory, redis, postgres.
package kv

import (
	"context"
	"errors"
	"time"
)

var ErrUnavailable = errors.New("kv backend unavailable")

// WindowResult is the outcome of one sliding-window hit.
type WindowResult struct {
	Allowed bool
	Count   int
	Oldest  time.Time
}

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only when key is absent or expired and reports
	// whether this call wrote it.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// Incr increments a counter, starting a new ttl when the key is fresh.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Window purges hits older than window, then records a hit at now iff
	// fewer than limit remain. Check and record are atomic per key.
	Window(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (WindowResult, error)
	Close() error
}

// Purger is implemented by backends without native expiry.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}
