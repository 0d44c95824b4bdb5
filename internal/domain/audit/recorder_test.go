package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timeoff/internal/platform/jobs"
	"timeoff/internal/platform/metrics"
	"timeoff/internal/requestctx"
)

type memStore struct {
	mu      sync.Mutex
	entries []Entry
	fail    error
}

func (m *memStore) Append(ctx context.Context, build func(prev []byte) (Entry, error)) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return Entry{}, m.fail
	}
	prev := []byte{}
	if n := len(m.entries); n > 0 {
		prev = m.entries[n-1].Hash
	}
	e, err := build(prev)
	if err != nil {
		return Entry{}, err
	}
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memStore) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...), len(m.entries), nil
}

func (m *memStore) Walk(ctx context.Context, fn func(Entry) error) error {
	m.mu.Lock()
	entries := append([]Entry(nil), m.entries...)
	m.mu.Unlock()
	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func newRecorder(t *testing.T, store StoreAPI, collector *metrics.Collector) *Recorder {
	t.Helper()
	chain, err := NewChain([]byte("jwt-secret-used-to-derive-audit-key"))
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	now := time.Date(2026, 3, 2, 9, 0, 0, 123456789, time.UTC)
	return NewRecorder(store, chain, jobs.Inline{}, collector).WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
}

func TestChainVerifiesAndDetectsTampering(t *testing.T) {
	store := &memStore{}
	rec := newRecorder(t, store, nil)
	ctx := requestctx.WithRequestID(context.Background(), "req-1")
	ctx = requestctx.WithClientIP(ctx, "198.51.100.7")

	rec.Log(ctx, "u-1", ActionLogin, nil)
	rec.Log(ctx, "u-1", "REQUEST_CREATED", map[string]string{"requestId": "r-1", "date": "2026-03-10"})
	rec.Log(ctx, "u-2", "REQUEST_APPROVED", map[string]string{"requestId": "r-1"})

	if len(store.entries) != 3 || store.entries[0].IP != "198.51.100.7" || store.entries[0].RequestID != "req-1" {
		t.Fatalf("unexpected entries %+v", store.entries)
	}
	res, err := rec.Verify(ctx)
	if err != nil || !res.Valid || res.Checked != 3 {
		t.Fatalf("expected valid chain of 3, got %+v %v", res, err)
	}

	store.entries[1].Details["date"] = "2026-03-11"
	res, err = rec.Verify(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Valid || res.BrokenAt != 2 {
		t.Fatalf("expected break at entry 2, got %+v", res)
	}
}

func TestChainDetectsDeletion(t *testing.T) {
	store := &memStore{}
	rec := newRecorder(t, store, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		rec.Log(ctx, "u-1", ActionLogin, nil)
	}
	store.entries = append(store.entries[:1], store.entries[2:]...)
	res, _ := rec.Verify(ctx)
	if res.Valid || res.BrokenAt != 3 {
		t.Fatalf("expected deletion to break the chain at 3, got %+v", res)
	}
}

func TestRecordFailureIsCountedNotReturned(t *testing.T) {
	collector := metrics.New()
	rec := newRecorder(t, &memStore{fail: errors.New("db down")}, collector)
	rec.Log(context.Background(), "u-1", ActionLogin, nil)
	if collector.Snapshot()["auditFailuresTotal"].(uint64) != 1 {
		t.Fatal("audit failure not counted")
	}
}

func TestNewChainKeyHandling(t *testing.T) {
	if _, err := NewChain(nil); err == nil {
		t.Fatal("expected empty key to fail")
	}
	a, _ := NewChain([]byte("secret-a"))
	b, _ := NewChain([]byte("secret-b"))
	e := Entry{Action: ActionLogin, CreatedAt: time.Unix(0, 0)}
	ha, _ := a.Link(nil, e)
	hb, _ := b.Link(nil, e)
	if string(ha) == string(hb) {
		t.Fatal("different keys must produce different links")
	}
	if len(ha) != 32 {
		t.Fatalf("expected 32-byte link, got %d", len(ha))
	}
}

func TestCanonicalIgnoresSubMicrosecond(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 1000, time.UTC)
	a, _ := canonical(Entry{Action: "x", CreatedAt: base})
	b, _ := canonical(Entry{Action: "x", CreatedAt: base.Add(999)})
	if string(a) != string(b) {
		t.Fatal("canonical form should be stable at microsecond precision")
	}
}
