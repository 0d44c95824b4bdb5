package memstore

import (
	"context"

	"timeoff/internal/domain/settings"
)

// Settings implements settings.StoreAPI.
type Settings struct {
	db *DB
}

var _ settings.StoreAPI = (*Settings)(nil)

func (s *Settings) LoadSMTP(context.Context) (settings.SMTP, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.smtp == nil {
		return settings.SMTP{}, false, nil
	}
	return *s.db.smtp, true, nil
}

func (s *Settings) SaveSMTP(_ context.Context, in settings.SMTP) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.smtp = &in
	return nil
}
