package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) LoadSMTP(ctx context.Context) (SMTP, bool, error) {
	var out SMTP
	err := s.DB.QueryRow(ctx, `
    SELECT enabled, host, port, username, password_enc, from_email, use_tls,
           COALESCE(updated_by::text, ''), updated_at
    FROM smtp_settings WHERE id = 1
  `).Scan(&out.Enabled, &out.Host, &out.Port, &out.User, &out.PasswordEnc, &out.From, &out.UseTLS, &out.UpdatedBy, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SMTP{}, false, nil
	}
	if err != nil {
		return SMTP{}, false, err
	}
	return out, true, nil
}

func (s *Store) SaveSMTP(ctx context.Context, in SMTP) error {
	var updatedBy *string
	if in.UpdatedBy != "" {
		updatedBy = &in.UpdatedBy
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO smtp_settings (id, enabled, host, port, username, password_enc, from_email, use_tls, updated_by, updated_at)
    VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8::uuid, $9)
    ON CONFLICT (id) DO UPDATE SET
      enabled = EXCLUDED.enabled,
      host = EXCLUDED.host,
      port = EXCLUDED.port,
      username = EXCLUDED.username,
      password_enc = EXCLUDED.password_enc,
      from_email = EXCLUDED.from_email,
      use_tls = EXCLUDED.use_tls,
      updated_by = EXCLUDED.updated_by,
      updated_at = EXCLUDED.updated_at
  `, in.Enabled, in.Host, in.Port, in.User, in.PasswordEnc, in.From, in.UseTLS, updatedBy, in.UpdatedAt)
	return err
}
