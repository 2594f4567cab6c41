package handlers

import (
	"context"
	"io"

	"github.com/groupify/backend/internal/models"
	"github.com/groupify/backend/internal/session"
)

// SessionProvider hands out running dashboard sessions.
type SessionProvider interface {
	Get(ctx context.Context, userID string) (*session.Loader, error)
	Lookup(userID string) (*session.Loader, bool)
	Stop(userID string) bool
}

// TripResolver resolves a user's trips.
type TripResolver interface {
	ResolveTrips(ctx context.Context, userID string) ([]models.Trip, bool)
}

// PhotoReplacer stores a new profile photo and returns its URL.
type PhotoReplacer interface {
	Replace(ctx context.Context, userID, filename string, r io.Reader) (string, error)
}
