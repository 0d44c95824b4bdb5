package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"timeoff/internal/platform/jobs"
	"timeoff/internal/platform/metrics"
	"timeoff/internal/requestctx"
)

// Recorder appends tamper-evident entries off the request path.
type Recorder struct {
	store   StoreAPI
	chain   *Chain
	jobs    jobs.Enqueuer
	metrics *metrics.Collector
	now     func() time.Time
}

func NewRecorder(store StoreAPI, chain *Chain, runner jobs.Enqueuer, collector *metrics.Collector) *Recorder {
	return &Recorder{store: store, chain: chain, jobs: runner, metrics: collector, now: time.Now}
}

func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Log fills request id and client address from ctx and records the entry.
func (r *Recorder) Log(ctx context.Context, actorID, action string, details map[string]string) {
	r.Record(ctx, Entry{
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		IP:        requestctx.GetClientIP(ctx),
		RequestID: requestctx.GetRequestID(ctx),
	})
}

// Record enqueues the append. Failures are logged and counted only.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	e.CreatedAt = Normalize(e.CreatedAt)
	r.jobs.Enqueue(jobs.JobAudit, func(ctx context.Context) error {
		if _, err := r.Append(ctx, e); err != nil {
			r.metrics.AuditFailure()
			slog.Warn("audit append failed", "component", "audit", "action", e.Action, "err", err)
			return err
		}
		return nil
	})
}

// Append writes e synchronously.
func (r *Recorder) Append(ctx context.Context, e Entry) (Entry, error) {
	e.CreatedAt = Normalize(e.CreatedAt)
	return r.store.Append(ctx, func(prev []byte) (Entry, error) {
		hash, err := r.chain.Link(prev, e)
		if err != nil {
			return Entry{}, fmt.Errorf("link audit entry: %w", err)
		}
		e.PrevHash = prev
		e.Hash = hash
		return e, nil
	})
}

func (r *Recorder) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return r.store.List(ctx, filter)
}

// Verify walks the chain and reports the first entry whose link fails.
func (r *Recorder) Verify(ctx context.Context) (VerifyResult, error) {
	res := VerifyResult{Valid: true}
	prev := []byte{}
	err := r.store.Walk(ctx, func(e Entry) error {
		ok, err := r.chain.Check(prev, e)
		if err != nil {
			return err
		}
		res.Checked++
		if !ok {
			res.Valid = false
			res.BrokenAt = e.ID
			return errStopWalk
		}
		prev = e.Hash
		return nil
	})
	if err != nil && err != errStopWalk {
		return VerifyResult{}, err
	}
	return res, nil
}

// Each streams every entry in chain order.
func (r *Recorder) Each(ctx context.Context, fn func(Entry) error) error {
	return r.store.Walk(ctx, fn)
}
