package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/security"
)

type SeedUserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, name, email, passwordHash string) (user.User, error)
}

// EnsureSeedUser creates the configured bootstrap account once. It is a no-op
// when SEED_USER_EMAIL or SEED_USER_PASSWORD is empty or the user exists.
func EnsureSeedUser(ctx context.Context, users SeedUserStore, cfg config.Config) error {
	if cfg.SeedUserEmail == "" || cfg.SeedUserPassword == "" {
		return nil
	}

	_, err := users.GetByEmail(ctx, cfg.SeedUserEmail)

	if err == nil {
		return nil
	}

	if !errors.Is(err, user.ErrUserNotFound) {
		return fmt.Errorf("lookup seed user: %w", err)
	}

	hash, err := security.HashPassword(cfg.SeedUserPassword)

	if err != nil {
		return err
	}

	_, err = users.Create(ctx, cfg.SeedUserName, cfg.SeedUserEmail, hash)

	// another replica may have won the race
	if errors.Is(err, user.ErrEmailAlreadyUsed) {
		return nil
	}

	return err
}
