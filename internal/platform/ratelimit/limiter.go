package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"timeoff/internal/platform/kv"
	"timeoff/internal/platform/metrics"
)

var ErrTooManyRequests = errors.New("too many requests")

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	// FailOpen is set when the backend could not be consulted.
	FailOpen bool
}

// Limiter applies per-key budgets over a shared kv.Store. Backend errors
// and timeouts allow the request and are logged and counted.
type Limiter struct {
	store   kv.Store
	timeout time.Duration
	metrics *metrics.Collector
	now     func() time.Time
}

func New(store kv.Store, timeout time.Duration, collector *metrics.Collector) *Limiter {
	return &Limiter{store: store, timeout: timeout, metrics: collector, now: time.Now}
}

// WithClock replaces the limiter clock.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Key combines the operation name with the client address.
func Key(operation, addr string) string {
	return "rl:" + operation + ":" + addr
}

// Check is a sliding window: a hit is allowed iff fewer than limit allowed
// hits fall inside the trailing window. Denied hits are not recorded.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit}
	}
	now := l.now()
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	res, err := l.store.Window(ctx, key, now, window, limit)
	if err != nil {
		return l.failOpen(key, limit, err)
	}
	d := Decision{Allowed: res.Allowed, Limit: limit, Remaining: max(limit-res.Count, 0)}
	if !res.Allowed {
		d.RetryAfter = res.Oldest.Add(window).Sub(now)
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}
	return d
}

// CheckFixed is a counter that resets window after its first hit.
func (l *Limiter) CheckFixed(ctx context.Context, key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit}
	}
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	bucket := l.now().Truncate(window)
	n, err := l.store.Incr(ctx, key+":"+bucket.Format("20060102T150405"), window)
	if err != nil {
		return l.failOpen(key, limit, err)
	}
	d := Decision{Allowed: n <= int64(limit), Limit: limit, Remaining: max(limit-int(n), 0)}
	if !d.Allowed {
		d.RetryAfter = bucket.Add(window).Sub(l.now())
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}
	return d
}

func (l *Limiter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

func (l *Limiter) failOpen(key string, limit int, err error) Decision {
	slog.Warn("rate limit backend unavailable, allowing request", "component", "ratelimit", "key", key, "err", err)
	l.metrics.RateLimitFailOpen()
	return Decision{Allowed: true, Limit: limit, Remaining: limit, FailOpen: true}
}
