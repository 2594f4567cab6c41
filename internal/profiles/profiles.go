// Package profiles resolves user profiles for roster and request enrichment,
// with optional in-memory and Redis caching.
package profiles

import (
	"context"
	"errors"

	"github.com/groupify/backend/internal/models"
)

// ErrProviderUnavailable indicates no profile source is configured.
var ErrProviderUnavailable = errors.New("profile provider unavailable")

// Provider returns the profile for the supplied user id.
type Provider interface {
	Lookup(ctx context.Context, userID string) (models.User, error)
}

// UserGetter is the subset of the user repository profiles are read from.
type UserGetter interface {
	Get(ctx context.Context, userID string) (models.User, error)
}

// StoreProvider reads profiles straight from the user repository.
type StoreProvider struct {
	Users UserGetter
}

// Lookup implements Provider.
func (p StoreProvider) Lookup(ctx context.Context, userID string) (models.User, error) {
	if p.Users == nil {
		return models.User{}, ErrProviderUnavailable
	}
	return p.Users.Get(ctx, userID)
}

// DisplayName falls back from the display name to the email to the id.
func DisplayName(user models.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	if user.Email != "" {
		return user.Email
	}
	return user.ID
}
