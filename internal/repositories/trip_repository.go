package repositories

import (
	"context"
	"time"

	"github.com/groupify/backend/internal/docstore"
	"github.com/groupify/backend/internal/models"
)

// TripRepository provides document-store backed access to trips.
type TripRepository struct {
	store docstore.Store
}

// NewTripRepository constructs a trip repository over the provided store.
func NewTripRepository(store docstore.Store) *TripRepository {
	return &TripRepository{store: store}
}

// Get loads a single trip.
func (r *TripRepository) Get(ctx context.Context, tripID string) (models.Trip, error) {
	doc, err := r.store.Get(ctx, models.CollectionTrips, tripID)
	if err != nil {
		return models.Trip{}, translate("get trip", err)
	}
	return models.TripFromDocument(doc), nil
}

// ListCreatedBy returns the trips created by userID.
func (r *TripRepository) ListCreatedBy(ctx context.Context, userID string) ([]models.Trip, error) {
	return r.list(ctx, "list created trips", docstore.Where("createdBy", docstore.OpEqual, userID))
}

// ListMemberOf returns the trips whose member list contains userID.
func (r *TripRepository) ListMemberOf(ctx context.Context, userID string) ([]models.Trip, error) {
	return r.list(ctx, "list member trips", docstore.Where("members", docstore.OpArrayContains, userID))
}

func (r *TripRepository) list(ctx context.Context, op string, filter docstore.Filter) ([]models.Trip, error) {
	docs, err := r.store.Query(ctx, models.CollectionTrips, filter)
	if err != nil {
		return nil, translate(op, err)
	}
	trips := make([]models.Trip, 0, len(docs))
	for _, doc := range docs {
		trips = append(trips, models.TripFromDocument(doc))
	}
	return trips, nil
}

// Create writes a new trip owned by trip.CreatedBy.
func (r *TripRepository) Create(ctx context.Context, trip models.Trip) error {
	members := trip.Members
	if members == nil {
		members = []string{}
	}
	admins := trip.Admins
	if admins == nil {
		admins = []string{trip.CreatedBy}
	}
	created := time.Now().UTC()
	if trip.CreatedAt != nil {
		created = trip.CreatedAt.UTC()
	}

	err := r.store.Set(ctx, models.CollectionTrips, trip.ID, map[string]any{
		"name":      trip.Name,
		"location":  trip.Location,
		"createdBy": trip.CreatedBy,
		"admins":    admins,
		"members":   members,
		"createdAt": created.Format(time.RFC3339Nano),
	})
	return translate("create trip", err)
}
