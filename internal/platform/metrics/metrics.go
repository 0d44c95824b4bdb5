package metrics

import (
	"sync/atomic"
	"time"
)

// Collector keeps process-local counters exposed on /metrics.
type Collector struct {
	totalRequests      uint64
	errorRequests      uint64
	rateLimited        uint64
	totalDurationMs    uint64
	rateLimitFailOpen  uint64
	revocationFailures uint64
	notifyFailures     uint64
	auditFailures      uint64
	loginFailures      uint64
	jobsDropped        uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) RateLimitFailOpen() {
	if c != nil {
		atomic.AddUint64(&c.rateLimitFailOpen, 1)
	}
}

func (c *Collector) RevocationFailure() {
	if c != nil {
		atomic.AddUint64(&c.revocationFailures, 1)
	}
}

func (c *Collector) NotificationFailure() {
	if c != nil {
		atomic.AddUint64(&c.notifyFailures, 1)
	}
}

func (c *Collector) AuditFailure() {
	if c != nil {
		atomic.AddUint64(&c.auditFailures, 1)
	}
}

func (c *Collector) LoginFailure() {
	if c != nil {
		atomic.AddUint64(&c.loginFailures, 1)
	}
}

func (c *Collector) JobDropped() {
	if c != nil {
		atomic.AddUint64(&c.jobsDropped, 1)
	}
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":           total,
		"errorsTotal":             atomic.LoadUint64(&c.errorRequests),
		"rateLimitedTotal":        atomic.LoadUint64(&c.rateLimited),
		"avgDurationMs":           avg,
		"totalDurationMs":         totalMs,
		"rateLimitFailOpenTotal":  atomic.LoadUint64(&c.rateLimitFailOpen),
		"revocationFailuresTotal": atomic.LoadUint64(&c.revocationFailures),
		"notificationFailures":    atomic.LoadUint64(&c.notifyFailures),
		"auditFailuresTotal":      atomic.LoadUint64(&c.auditFailures),
		"loginFailuresTotal":      atomic.LoadUint64(&c.loginFailures),
		"jobsDroppedTotal":        atomic.LoadUint64(&c.jobsDropped),
	}
}
