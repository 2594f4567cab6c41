package repositories

import (
	"context"
	"strings"

	"github.com/groupify/backend/internal/docstore"
	"github.com/groupify/backend/internal/models"
)

// UserRepository provides document-store backed access to user records.
type UserRepository struct {
	store docstore.Store
}

// NewUserRepository constructs a user repository over the provided store.
func NewUserRepository(store docstore.Store) *UserRepository {
	return &UserRepository{store: store}
}

// Get loads a user by id.
func (r *UserRepository) Get(ctx context.Context, userID string) (models.User, error) {
	if strings.TrimSpace(userID) == "" {
		return models.User{}, ErrNotFound
	}
	doc, err := r.store.Get(ctx, models.CollectionUsers, userID)
	if err != nil {
		return models.User{}, translate("get user", err)
	}
	return models.UserFromDocument(doc), nil
}

// Create writes a new user profile. Existing records are left untouched.
func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	if _, err := r.store.Get(ctx, models.CollectionUsers, user.ID); err == nil {
		return ErrConflict
	}

	friends := user.Friends
	if friends == nil {
		friends = []string{}
	}
	trips := user.Trips
	if trips == nil {
		trips = []string{}
	}

	err := r.store.Set(ctx, models.CollectionUsers, user.ID, map[string]any{
		"displayName": user.DisplayName,
		"email":       user.Email,
		"photoURL":    user.PhotoURL,
		"friends":     friends,
		"trips":       trips,
	})
	return translate("create user", err)
}

// AddTrips merges trip ids into the denormalized trip list of a user. Ids
// already present are kept once, so a concurrent invite acceptance is never
// overwritten.
func (r *UserRepository) AddTrips(ctx context.Context, userID string, tripIDs []string) error {
	values := make([]any, len(tripIDs))
	for i, id := range tripIDs {
		values[i] = id
	}
	err := r.store.Update(ctx, models.CollectionUsers, userID, map[string]any{"trips": docstore.ArrayUnion(values...)})
	return translate("update user trips", err)
}

// SetPhotoURL records a new profile photo location.
func (r *UserRepository) SetPhotoURL(ctx context.Context, userID, url string) error {
	err := r.store.Update(ctx, models.CollectionUsers, userID, map[string]any{"photoURL": url})
	return translate("update user photo", err)
}
