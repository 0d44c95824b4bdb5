package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const selectColumns = `
  id::text, email, password_hash, first_name, last_name, role,
  COALESCE(supervisor_id::text, ''), is_active, token_version, last_login, created_at, updated_at`

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// Scan reads one identity row in selectColumns order.
func Scan(row pgx.Row) (Identity, error) {
	var i Identity
	var role string
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.FirstName, &i.LastName, &role,
		&i.SupervisorID, &i.Active, &i.TokenVersion, &i.LastLogin, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, err
	}
	i.Role = Role(role)
	return i, nil
}

// Columns returns the select list used by Scan, for other packages' queries.
func Columns() string {
	return selectColumns
}

func (s *Store) ByID(ctx context.Context, id string) (Identity, error) {
	if !ValidID(id) {
		return Identity{}, ErrNotFound
	}
	return Scan(s.DB.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE id = $1::uuid`, id))
}

func (s *Store) ByEmail(ctx context.Context, email string) (Identity, error) {
	return Scan(s.DB.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE lower(email) = $1`, NormalizeEmail(email)))
}

func (s *Store) List(ctx context.Context, filter ListFilter) ([]Identity, error) {
	query := `SELECT ` + selectColumns + ` FROM users WHERE 1=1`
	var args []any
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			roles = append(roles, string(r))
		}
		args = append(args, roles)
		query += fmt.Sprintf(" AND role = ANY($%d)", len(args))
	}
	if filter.ActiveOnly {
		query += " AND is_active"
	}
	query += " ORDER BY last_name, first_name, email"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Identity
	for rows.Next() {
		i, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(1) FROM users`).Scan(&n)
	return n, err
}

func (s *Store) Create(ctx context.Context, in NewIdentity) (Identity, error) {
	var supervisor *string
	if in.SupervisorID != "" {
		supervisor = &in.SupervisorID
	}
	row := s.DB.QueryRow(ctx, `
    INSERT INTO users (email, password_hash, first_name, last_name, role, supervisor_id, is_active)
    VALUES ($1, $2, $3, $4, $5, $6::uuid, $7)
    RETURNING `+selectColumns,
		NormalizeEmail(in.Email), in.PasswordHash, strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName),
		string(in.Role), supervisor, in.Active)
	created, err := Scan(row)
	if isUniqueViolation(err) {
		return Identity{}, ErrEmailTaken
	}
	return created, err
}

// Update applies the patch. Deactivating an account bumps its token version.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (Identity, error) {
	if !ValidID(id) {
		return Identity{}, ErrNotFound
	}
	var role *string
	if patch.Role != nil {
		r := string(*patch.Role)
		role = &r
	}
	var email *string
	if patch.Email != nil {
		e := NormalizeEmail(*patch.Email)
		email = &e
	}
	row := s.DB.QueryRow(ctx, `
    UPDATE users SET
      first_name = COALESCE($2, first_name),
      last_name = COALESCE($3, last_name),
      email = COALESCE($4, email),
      role = COALESCE($5, role),
      token_version = token_version + CASE WHEN is_active AND $6 = false THEN 1 ELSE 0 END,
      is_active = COALESCE($6, is_active),
      updated_at = now()
    WHERE id = $1::uuid
    RETURNING `+selectColumns,
		id, patch.FirstName, patch.LastName, email, role, patch.Active)
	updated, err := Scan(row)
	if isUniqueViolation(err) {
		return Identity{}, ErrEmailTaken
	}
	return updated, err
}

func (s *Store) SetPasswordHash(ctx context.Context, id, hash string) (int, error) {
	if !ValidID(id) {
		return 0, ErrNotFound
	}
	var version int
	err := s.DB.QueryRow(ctx, `
    UPDATE users SET password_hash = $2, token_version = token_version + 1, updated_at = now()
    WHERE id = $1::uuid
    RETURNING token_version
  `, id, hash).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return version, err
}

func (s *Store) IncrementTokenVersion(ctx context.Context, id string) (int, error) {
	if !ValidID(id) {
		return 0, ErrNotFound
	}
	var version int
	err := s.DB.QueryRow(ctx, `
    UPDATE users SET token_version = token_version + 1, updated_at = now()
    WHERE id = $1::uuid
    RETURNING token_version
  `, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return version, err
}

func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1::uuid`, id, at)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ValidID reports whether id is a well-formed identifier.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
