package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"timeoff/internal/domain/auth"
	"timeoff/internal/domain/identity"
	"timeoff/internal/platform/config"
)

// Seed creates the bootstrap admin from SEED_ADMIN_EMAIL and
// SEED_ADMIN_PASSWORD when the directory is empty. Without both values it
// does nothing and the system waits for POST /init.
func Seed(ctx context.Context, identities identity.StoreAPI, hasher *auth.Hasher, cfg config.Config) error {
	email := strings.TrimSpace(cfg.SeedAdminEmail)
	if email == "" || cfg.SeedAdminPassword == "" {
		return nil
	}

	count, err := identities.Count(ctx)
	if err != nil {
		return fmt.Errorf("count identities: %w", err)
	}
	if count > 0 {
		return nil
	}

	if err := identity.ValidateEmail(email); err != nil {
		return fmt.Errorf("SEED_ADMIN_EMAIL: %w", err)
	}
	if err := identity.ValidatePassword(cfg.SeedAdminPassword); err != nil {
		return fmt.Errorf("SEED_ADMIN_PASSWORD: %w", err)
	}
	digest, err := hasher.Hash(cfg.SeedAdminPassword)
	if err != nil {
		return err
	}
	admin, err := identities.Create(ctx, identity.NewIdentity{
		Email:        email,
		PasswordHash: digest,
		FirstName:    "System",
		LastName:     "Administrator",
		Role:         identity.RoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}
	slog.Info("bootstrap admin created", "identityId", admin.ID)
	return nil
}
