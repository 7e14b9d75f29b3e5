package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/PremBamrung/tempy/internal/config"
	"github.com/PremBamrung/tempy/internal/identity"
)

// SeedDefaultUser creates the bootstrap account named by the seed config.
// Seeding is idempotent: an existing account with the same username is left
// untouched, and empty credentials disable seeding entirely.
func SeedDefaultUser(ctx context.Context, users *identity.Store, seed config.SeedConfig) error {
	if seed.Username == "" || seed.Password == "" {
		return nil
	}

	_, errCreate := users.CreateUser(ctx, identity.NewUser{
		Username: seed.Username,
		Password: seed.Password,
		Email:    fmt.Sprintf("%s@example.com", seed.Username),
		FullName: "Default User",
	})
	if errCreate != nil {
		if errors.Is(errCreate, identity.ErrDuplicateUsername) {
			return nil
		}
		return fmt.Errorf("app: seed default user: %w", errCreate)
	}

	log.WithField("username", seed.Username).Info("created default user")
	return nil
}
