package metrics

import (
	"testing"
	"time"
)

func TestCollectorSnapshot(t *testing.T) {
	c := New()
	c.Record(200, 10*time.Millisecond)
	c.Record(429, 2*time.Millisecond)
	c.Record(500, 0)
	c.RateLimitFailOpen()
	c.RevocationFailure()

	snap := c.Snapshot()
	if snap["requestsTotal"].(uint64) != 3 {
		t.Fatalf("expected 3 requests, got %v", snap["requestsTotal"])
	}
	if snap["rateLimitedTotal"].(uint64) != 1 || snap["errorsTotal"].(uint64) != 1 {
		t.Fatalf("unexpected counters: %v", snap)
	}
	if snap["rateLimitFailOpenTotal"].(uint64) != 1 || snap["revocationFailuresTotal"].(uint64) != 1 {
		t.Fatalf("unexpected failure counters: %v", snap)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.Record(200, time.Millisecond)
	c.AuditFailure()
	c.NotificationFailure()
}
