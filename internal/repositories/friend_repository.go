package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/groupify/backend/internal/docstore"
	"github.com/groupify/backend/internal/models"
)

// FriendRepository provides document-store backed persistence for friend requests.
type FriendRepository struct {
	store docstore.Store
	now   func() time.Time
}

// NewFriendRepository constructs a friend request repository over the provided store.
func NewFriendRepository(store docstore.Store) *FriendRepository {
	return &FriendRepository{store: store, now: time.Now}
}

// PendingFilters selects the pending requests addressed to userID.
func PendingFilters(userID string) []docstore.Filter {
	return []docstore.Filter{
		docstore.Where("to", docstore.OpEqual, userID),
		docstore.Where("status", docstore.OpEqual, models.StatusPending),
	}
}

// CreateRequest persists a new pending friend request.
func (r *FriendRepository) CreateRequest(ctx context.Context, request models.FriendRequest) error {
	if request.From == request.To {
		return fmt.Errorf("create friend request: %w", ErrConflict)
	}
	created := request.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	err := r.store.Set(ctx, models.CollectionFriendRequests, request.ID, map[string]any{
		"from":      request.From,
		"to":        request.To,
		"status":    models.StatusPending,
		"createdAt": created.UTC().Format(time.RFC3339Nano),
	})
	return translate("create friend request", err)
}

// ListPending returns the decodable pending requests addressed to userID.
func (r *FriendRepository) ListPending(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	docs, err := r.store.Query(ctx, models.CollectionFriendRequests, PendingFilters(userID)...)
	if err != nil {
		return nil, translate("list pending friend requests", err)
	}
	requests, _ := DecodeFriendRequests(docs)
	return requests, nil
}

// DecodeFriendRequests decodes docs in order and returns the ids of the
// documents that could not be decoded.
func DecodeFriendRequests(docs []docstore.Document) ([]models.FriendRequest, []string) {
	requests := make([]models.FriendRequest, 0, len(docs))
	var malformed []string
	for _, doc := range docs {
		req, ok := models.FriendRequestFromDocument(doc)
		if !ok {
			malformed = append(malformed, doc.ID)
			continue
		}
		requests = append(requests, req)
	}
	return requests, malformed
}

// Get loads a single friend request.
func (r *FriendRepository) Get(ctx context.Context, requestID string) (models.FriendRequest, error) {
	doc, err := r.store.Get(ctx, models.CollectionFriendRequests, requestID)
	if err != nil {
		return models.FriendRequest{}, translate("get friend request", err)
	}
	req, ok := models.FriendRequestFromDocument(doc)
	if !ok {
		return models.FriendRequest{}, fmt.Errorf("decode friend request %s: %w", requestID, ErrNotFound)
	}
	return req, nil
}

// Accept marks the request accepted and records the friendship on both users.
func (r *FriendRepository) Accept(ctx context.Context, userID, requestID string) error {
	req, err := r.pendingFor(ctx, userID, requestID)
	if err != nil {
		return err
	}

	err = r.store.Batch(ctx, []docstore.Mutation{
		docstore.UpdateMutation(models.CollectionFriendRequests, req.ID, r.respond(models.StatusAccepted)),
		docstore.UpdateMutation(models.CollectionUsers, req.To, map[string]any{"friends": docstore.ArrayUnion(req.From)}),
		docstore.UpdateMutation(models.CollectionUsers, req.From, map[string]any{"friends": docstore.ArrayUnion(req.To)}),
	})
	return translate("accept friend request", err)
}

// Decline marks the request declined.
func (r *FriendRepository) Decline(ctx context.Context, userID, requestID string) error {
	req, err := r.pendingFor(ctx, userID, requestID)
	if err != nil {
		return err
	}
	err = r.store.Update(ctx, models.CollectionFriendRequests, req.ID, r.respond(models.StatusDeclined))
	return translate("decline friend request", err)
}

func (r *FriendRepository) pendingFor(ctx context.Context, userID, requestID string) (models.FriendRequest, error) {
	req, err := r.Get(ctx, requestID)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if req.To != userID {
		return models.FriendRequest{}, fmt.Errorf("friend request %s: %w", requestID, ErrForbidden)
	}
	if req.Status != models.StatusPending {
		return models.FriendRequest{}, fmt.Errorf("friend request %s is %s: %w", requestID, req.Status, ErrConflict)
	}
	return req, nil
}

func (r *FriendRepository) respond(status string) map[string]any {
	return map[string]any{
		"status":      status,
		"respondedAt": r.now().UTC().Format(time.RFC3339Nano),
	}
}
