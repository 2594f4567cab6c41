package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/groupify/backend/internal/docstore"
	"github.com/groupify/backend/internal/models"
	"github.com/groupify/backend/internal/profiles"
)

// RosterTracker follows a user's friend list and resolves each friend's profile.
type RosterTracker struct {
	store    docstore.Store
	profiles profiles.Provider
	logger   *slog.Logger
}

// NewRosterTracker constructs a roster tracker.
func NewRosterTracker(store docstore.Store, provider profiles.Provider, logger *slog.Logger) *RosterTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RosterTracker{store: store, profiles: provider, logger: logger}
}

// Load resolves the roster once. A missing user record yields an empty roster.
func (t *RosterTracker) Load(ctx context.Context, userID string) ([]models.Friend, error) {
	doc, err := t.store.Get(ctx, models.CollectionUsers, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return []models.Friend{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	return t.resolve(ctx, userID, doc), nil
}

// Subscribe attaches to the user's record in the background and calls
// onChange with the complete roster after every snapshot. A record created
// after Subscribe starts emitting once it appears.
func (t *RosterTracker) Subscribe(ctx context.Context, userID string, onChange func([]models.Friend)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel)
	box := newMailbox[docstore.Document]()

	go func() {
		defer close(sub.done)

		release, err := t.store.SubscribeDocument(ctx, models.CollectionUsers, userID, func(doc docstore.Document, exists bool) {
			if exists {
				box.offer(doc)
			}
		})
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Error("roster subscription failed", "userId", userID, "error", err)
			}
			return
		}
		if !sub.attach(release) {
			return
		}

		drain(ctx, sub, box, func(ctx context.Context, doc docstore.Document) []models.Friend {
			return t.resolve(ctx, userID, doc)
		}, onChange)
	}()

	return sub
}

// resolve fetches friend profiles one after another, skipping invalid ids
// and failed lookups.
func (t *RosterTracker) resolve(ctx context.Context, userID string, doc docstore.Document) []models.Friend {
	ids := models.IDList(doc.Data["friends"])
	roster := make([]models.Friend, 0, len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			return roster
		}
		user, err := t.lookup(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Warn("skipping friend profile", "userId", userID, "friendId", id, "error", err)
			}
			continue
		}
		user.ID = id
		roster = append(roster, models.Friend{
			UID:         id,
			DisplayName: profiles.DisplayName(user),
			Email:       user.Email,
			PhotoURL:    user.PhotoURL,
		})
	}
	return roster
}

func (t *RosterTracker) lookup(ctx context.Context, id string) (models.User, error) {
	if t.profiles == nil {
		return models.User{}, profiles.ErrProviderUnavailable
	}
	return t.profiles.Lookup(ctx, id)
}
