package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/groupify/backend/internal/docstore"
	"github.com/groupify/backend/internal/models"
)

// InviteRepository provides document-store backed persistence for trip invites.
type InviteRepository struct {
	store docstore.Store
	now   func() time.Time
}

// NewInviteRepository constructs a trip invite repository over the provided store.
func NewInviteRepository(store docstore.Store) *InviteRepository {
	return &InviteRepository{store: store, now: time.Now}
}

// Create persists a new pending invite.
func (r *InviteRepository) Create(ctx context.Context, invite models.TripInvite) error {
	created := invite.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	err := r.store.Set(ctx, models.CollectionTripInvites, invite.ID, map[string]any{
		"tripId":       invite.TripID,
		"tripName":     invite.TripName,
		"inviterId":    invite.InviterID,
		"inviterName":  invite.InviterName,
		"inviterPhoto": invite.InviterPhoto,
		"inviteeId":    invite.InviteeID,
		"status":       models.StatusPending,
		"createdAt":    created.UTC().Format(time.RFC3339Nano),
	})
	return translate("create trip invite", err)
}

// ListPending returns the decodable pending invites addressed to userID.
func (r *InviteRepository) ListPending(ctx context.Context, userID string) ([]models.TripInvite, error) {
	docs, err := r.store.Query(ctx, models.CollectionTripInvites,
		docstore.Where("inviteeId", docstore.OpEqual, userID),
		docstore.Where("status", docstore.OpEqual, models.StatusPending),
	)
	if err != nil {
		return nil, translate("list pending trip invites", err)
	}
	invites := make([]models.TripInvite, 0, len(docs))
	for _, doc := range docs {
		if inv, ok := models.TripInviteFromDocument(doc); ok {
			invites = append(invites, inv)
		}
	}
	return invites, nil
}

// Get loads a single invite.
func (r *InviteRepository) Get(ctx context.Context, inviteID string) (models.TripInvite, error) {
	doc, err := r.store.Get(ctx, models.CollectionTripInvites, inviteID)
	if err != nil {
		return models.TripInvite{}, translate("get trip invite", err)
	}
	inv, ok := models.TripInviteFromDocument(doc)
	if !ok {
		return models.TripInvite{}, fmt.Errorf("decode trip invite %s: %w", inviteID, ErrNotFound)
	}
	return inv, nil
}

// Accept adds userID to the trip, records the trip on the user and marks the
// invite accepted, all in one batch. knownTrips are trip ids the caller has
// already resolved for userID; they are merged into the user's trip list
// ahead of the new trip so a stale list cannot hide them afterwards.
func (r *InviteRepository) Accept(ctx context.Context, userID, inviteID string, knownTrips []string) error {
	inv, err := r.pendingFor(ctx, userID, inviteID)
	if err != nil {
		return err
	}

	tripIDs := make([]any, 0, len(knownTrips)+1)
	for _, id := range models.IDList(knownTrips) {
		if id != inv.TripID {
			tripIDs = append(tripIDs, id)
		}
	}
	tripIDs = append(tripIDs, inv.TripID)

	err = r.store.Batch(ctx, []docstore.Mutation{
		docstore.UpdateMutation(models.CollectionTrips, inv.TripID, map[string]any{"members": docstore.ArrayUnion(userID)}),
		docstore.UpdateMutation(models.CollectionUsers, userID, map[string]any{"trips": docstore.ArrayUnion(tripIDs...)}),
		docstore.UpdateMutation(models.CollectionTripInvites, inv.ID, r.respond(models.StatusAccepted)),
	})
	return translate("accept trip invite", err)
}

// Decline marks the invite declined.
func (r *InviteRepository) Decline(ctx context.Context, userID, inviteID string) error {
	inv, err := r.pendingFor(ctx, userID, inviteID)
	if err != nil {
		return err
	}
	err = r.store.Update(ctx, models.CollectionTripInvites, inv.ID, r.respond(models.StatusDeclined))
	return translate("decline trip invite", err)
}

func (r *InviteRepository) pendingFor(ctx context.Context, userID, inviteID string) (models.TripInvite, error) {
	inv, err := r.Get(ctx, inviteID)
	if err != nil {
		return models.TripInvite{}, err
	}
	if inv.InviteeID != userID {
		return models.TripInvite{}, fmt.Errorf("trip invite %s: %w", inviteID, ErrForbidden)
	}
	if inv.Status != models.StatusPending {
		return models.TripInvite{}, fmt.Errorf("trip invite %s is %s: %w", inviteID, inv.Status, ErrConflict)
	}
	return inv, nil
}

func (r *InviteRepository) respond(status string) map[string]any {
	return map[string]any{
		"status":      status,
		"respondedAt": r.now().UTC().Format(time.RFC3339Nano),
	}
}
