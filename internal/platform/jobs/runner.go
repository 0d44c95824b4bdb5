package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"timeoff/internal/platform/metrics"
)

const (
	JobNotify      = "notify"
	JobAudit       = "audit_append"
	JobMaintenance = "kv_maintenance"
)

// Enqueuer accepts fire-and-forget work.
type Enqueuer interface {
	Enqueue(jobType string, run func(context.Context) error)
}

type job struct {
	Type string
	Run  func(context.Context) error
}

type periodic struct {
	Type     string
	Interval time.Duration
	Run      func(context.Context) error
}

// Runner executes queued jobs on a fixed set of workers. Enqueue never
// blocks: a full queue drops the job with a warning.
type Runner struct {
	queue    chan job
	workers  int
	timeout  time.Duration
	metrics  *metrics.Collector
	periodic []periodic
	wg       sync.WaitGroup
}

func New(queueSize, workers int, collector *metrics.Collector) *Runner {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 2
	}
	return &Runner{
		queue:   make(chan job, queueSize),
		workers: workers,
		timeout: 30 * time.Second,
		metrics: collector,
	}
}

// Every registers a periodic job; call before Start.
func (r *Runner) Every(jobType string, interval time.Duration, run func(context.Context) error) {
	if interval <= 0 {
		return
	}
	r.periodic = append(r.periodic, periodic{Type: jobType, Interval: interval, Run: run})
}

func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	for _, p := range r.periodic {
		r.wg.Add(1)
		go r.schedule(ctx, p)
	}
}

// Wait blocks until workers exit after the start context is cancelled.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) Enqueue(jobType string, run func(context.Context) error) {
	select {
	case r.queue <- job{Type: jobType, Run: run}:
	default:
		r.metrics.JobDropped()
		slog.Warn("job queue full", "jobType", jobType)
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case j := <-r.queue:
			r.runJob(ctx, j)
		}
	}
}

// drain runs whatever is already queued with a short deadline.
func (r *Runner) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case j := <-r.queue:
			r.runJob(ctx, j)
		default:
			return
		}
	}
}

func (r *Runner) runJob(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("job panicked", "jobType", j.Type, "panic", rec)
		}
	}()
	if err := j.Run(ctx); err != nil {
		slog.Warn("job run failed", "jobType", j.Type, "err", err)
	}
}

func (r *Runner) schedule(ctx context.Context, p periodic) {
	defer r.wg.Done()
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Enqueue(p.Type, p.Run)
		}
	}
}

// Inline runs jobs synchronously on the caller's goroutine. Used in tests
// and by tools that have no background runner.
type Inline struct{}

func (Inline) Enqueue(jobType string, run func(context.Context) error) {
	if err := run(context.Background()); err != nil {
		slog.Warn("job run failed", "jobType", jobType, "err", err)
	}
}
