// Package memstore keeps every domain store in process memory. It backs
// the --ephemeral server mode and the workflow tests; state is lost on exit.
package memstore

import (
	"sync"
	"time"

	"timeoff/internal/domain/audit"
	"timeoff/internal/domain/identity"
	"timeoff/internal/domain/leave"
	"timeoff/internal/domain/settings"
)

// DB is the shared state behind the store views. One mutex guards all
// tables so cross-table checks see a consistent snapshot.
type DB struct {
	mu       sync.Mutex
	users    map[string]identity.Identity
	requests map[string]leave.Request
	entries  []audit.Entry
	smtp     *settings.SMTP
	now      func() time.Time
}

func New() *DB {
	return &DB{
		users:    map[string]identity.Identity{},
		requests: map[string]leave.Request{},
		now:      time.Now,
	}
}

func (db *DB) WithClock(now func() time.Time) *DB {
	db.now = now
	return db
}

func (db *DB) Identities() *Identities { return &Identities{db: db} }
func (db *DB) Org() *Org               { return &Org{db: db} }
func (db *DB) Requests() *Requests     { return &Requests{db: db} }
func (db *DB) Audit() *Audit           { return &Audit{db: db} }
func (db *DB) Settings() *Settings     { return &Settings{db: db} }

// Ping satisfies readiness checks.
func (db *DB) Ping() error { return nil }
