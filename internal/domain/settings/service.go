package settings

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"timeoff/internal/platform/crypto"
	"timeoff/internal/platform/email"
)

// Service manages SMTP settings and serves them to the mail sender. Until an
// admin saves settings, the environment configuration applies.
type Service struct {
	store    StoreAPI
	sealer   crypto.Sealer
	fallback email.Settings
	now      func() time.Time
}

func New(store StoreAPI, sealer crypto.Sealer, fallback email.Settings) *Service {
	return &Service{store: store, sealer: sealer, fallback: fallback, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SMTPSettings implements email.Source.
func (s *Service) SMTPSettings(ctx context.Context) (email.Settings, error) {
	stored, ok, err := s.store.LoadSMTP(ctx)
	if err != nil {
		return email.Settings{}, err
	}
	if !ok {
		return s.fallback, nil
	}
	password, err := s.sealer.Open(stored.PasswordEnc)
	if err != nil {
		return email.Settings{}, fmt.Errorf("open smtp password: %w", err)
	}
	return email.Settings{
		Enabled:  stored.Enabled,
		Host:     stored.Host,
		Port:     stored.Port,
		User:     stored.User,
		Password: password,
		From:     stored.From,
		UseTLS:   stored.UseTLS,
	}, nil
}

func (s *Service) Get(ctx context.Context) (SMTPView, error) {
	stored, ok, err := s.store.LoadSMTP(ctx)
	if err != nil {
		return SMTPView{}, err
	}
	if !ok {
		f := s.fallback
		return SMTPView{
			Enabled:     f.Enabled,
			Host:        f.Host,
			Port:        f.Port,
			User:        f.User,
			Password:    crypto.Mask(f.Password),
			HasPassword: f.Password != "",
			From:        f.From,
			UseTLS:      f.UseTLS,
			Source:      SourceEnvironment,
		}, nil
	}
	return s.view(stored)
}

func (s *Service) Update(ctx context.Context, actorID string, upd SMTPUpdate) (SMTPView, error) {
	current, ok, err := s.store.LoadSMTP(ctx)
	if err != nil {
		return SMTPView{}, err
	}
	if !ok {
		current, err = s.seed()
		if err != nil {
			return SMTPView{}, err
		}
	}
	masked, err := s.maskedPassword(current)
	if err != nil {
		return SMTPView{}, err
	}

	next := current
	if upd.Enabled != nil {
		next.Enabled = *upd.Enabled
	}
	if upd.Host != nil {
		next.Host = strings.TrimSpace(*upd.Host)
	}
	if upd.Port != nil {
		next.Port = *upd.Port
	}
	if upd.User != nil {
		next.User = strings.TrimSpace(*upd.User)
	}
	if upd.From != nil {
		next.From = strings.TrimSpace(*upd.From)
	}
	if upd.UseTLS != nil {
		next.UseTLS = *upd.UseTLS
	}
	if upd.Password != nil && *upd.Password != masked {
		sealed, err := s.sealer.Seal(*upd.Password)
		if err != nil {
			return SMTPView{}, fmt.Errorf("seal smtp password: %w", err)
		}
		next.PasswordEnc = sealed
	}
	if err := validate(next); err != nil {
		return SMTPView{}, err
	}
	next.UpdatedBy = actorID
	next.UpdatedAt = s.now().UTC()
	if err := s.store.SaveSMTP(ctx, next); err != nil {
		return SMTPView{}, err
	}
	return s.view(next)
}

func (s *Service) seed() (SMTP, error) {
	sealed, err := s.sealer.Seal(s.fallback.Password)
	if err != nil {
		return SMTP{}, err
	}
	port := s.fallback.Port
	if port == 0 {
		port = 587
	}
	return SMTP{
		Enabled:     s.fallback.Enabled,
		Host:        s.fallback.Host,
		Port:        port,
		User:        s.fallback.User,
		PasswordEnc: sealed,
		From:        s.fallback.From,
		UseTLS:      s.fallback.UseTLS,
	}, nil
}

func (s *Service) maskedPassword(stored SMTP) (string, error) {
	plain, err := s.sealer.Open(stored.PasswordEnc)
	if err != nil {
		return "", fmt.Errorf("open smtp password: %w", err)
	}
	return crypto.Mask(plain), nil
}

func (s *Service) view(stored SMTP) (SMTPView, error) {
	masked, err := s.maskedPassword(stored)
	if err != nil {
		return SMTPView{}, err
	}
	updatedAt := stored.UpdatedAt
	return SMTPView{
		Enabled:     stored.Enabled,
		Host:        stored.Host,
		Port:        stored.Port,
		User:        stored.User,
		Password:    masked,
		HasPassword: len(stored.PasswordEnc) > 0,
		From:        stored.From,
		UseTLS:      stored.UseTLS,
		Source:      SourceDatabase,
		UpdatedAt:   &updatedAt,
	}, nil
}

func validate(s SMTP) error {
	if s.Port < 1 || s.Port > 65535 {
		return ErrInvalidPort
	}
	if s.Enabled && s.Host == "" {
		return ErrHostRequired
	}
	if s.From != "" {
		if _, err := mail.ParseAddress(s.From); err != nil {
			return ErrInvalidSender
		}
	}
	return nil
}
