package config

import (
	"context"
	"errors"
	"fmt"

	"booking-bot/internal/models"
	"booking-bot/internal/store"
)

// EnsureOwner makes sure the user with the given id exists and holds the
// owner role. A zero id is a no-op.
func EnsureOwner(ctx context.Context, s store.Store, id int64) error {
	if id == 0 {
		return nil
	}

	u, err := s.GetUser(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_, err = s.AddUser(ctx, models.User{ID: id, Role: models.RoleOwner})
		if errors.Is(err, store.ErrAlreadyExists) {
			return s.SetUserRole(ctx, id, models.RoleOwner)
		}
		if err != nil {
			return fmt.Errorf("failed to add owner: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to look up owner: %w", err)
	case u.Role == models.RoleOwner:
		return nil
	}

	if err := s.SetUserRole(ctx, id, models.RoleOwner); err != nil {
		return fmt.Errorf("failed to promote owner: %w", err)
	}
	return nil
}
