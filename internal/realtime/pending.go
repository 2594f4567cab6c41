package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/groupify/backend/internal/docstore"
	"github.com/groupify/backend/internal/models"
	"github.com/groupify/backend/internal/profiles"
	"github.com/groupify/backend/internal/repositories"
)

// PendingTracker follows the pending friend requests addressed to a user and
// enriches them with the sender's profile.
type PendingTracker struct {
	store    docstore.Store
	requests *repositories.FriendRepository
	profiles profiles.Provider
	logger   *slog.Logger
}

// NewPendingTracker constructs a pending request tracker.
func NewPendingTracker(store docstore.Store, provider profiles.Provider, logger *slog.Logger) *PendingTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingTracker{
		store:    store,
		requests: repositories.NewFriendRepository(store),
		profiles: provider,
		logger:   logger,
	}
}

// Load reads the pending requests once.
func (t *PendingTracker) Load(ctx context.Context, userID string) ([]models.PendingRequest, error) {
	requests, err := t.requests.ListPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load pending requests: %w", err)
	}
	return t.enrich(ctx, userID, requests), nil
}

// Subscribe opens a live query in the background and calls onChange with the
// complete request list after every snapshot.
func (t *PendingTracker) Subscribe(ctx context.Context, userID string, onChange func([]models.PendingRequest)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel)
	box := newMailbox[[]docstore.Document]()

	go func() {
		defer close(sub.done)

		release, err := t.store.SubscribeQuery(ctx, models.CollectionFriendRequests, repositories.PendingFilters(userID), func(docs []docstore.Document) {
			box.offer(docs)
		})
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Error("pending request subscription failed", "userId", userID, "error", err)
			}
			return
		}
		if !sub.attach(release) {
			return
		}

		drain(ctx, sub, box, func(ctx context.Context, docs []docstore.Document) []models.PendingRequest {
			requests, malformed := repositories.DecodeFriendRequests(docs)
			for _, id := range malformed {
				t.logger.Warn("skipping malformed friend request", "userId", userID, "requestId", id)
			}
			return t.enrich(ctx, userID, requests)
		}, onChange)
	}()

	return sub
}

// enrich drops self-addressed requests. A failed sender lookup keeps the
// request with empty sender fields.
func (t *PendingTracker) enrich(ctx context.Context, userID string, requests []models.FriendRequest) []models.PendingRequest {
	pending := make([]models.PendingRequest, 0, len(requests))

	for _, req := range requests {
		if req.From == userID {
			continue
		}

		entry := models.PendingRequest{FriendRequest: req}
		if ctx.Err() != nil {
			pending = append(pending, entry)
			continue
		}
		sender, err := t.lookup(ctx, req.From)
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Warn("sender profile unavailable", "userId", userID, "requestId", req.ID, "senderId", req.From, "error", err)
			}
		} else {
			sender.ID = req.From
			entry.SenderName = profiles.DisplayName(sender)
			entry.SenderEmail = sender.Email
			entry.SenderPhoto = sender.PhotoURL
		}
		pending = append(pending, entry)
	}
	return pending
}

func (t *PendingTracker) lookup(ctx context.Context, id string) (models.User, error) {
	if t.profiles == nil {
		return models.User{}, profiles.ErrProviderUnavailable
	}
	return t.profiles.Lookup(ctx, id)
}
