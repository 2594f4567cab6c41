// Package notify merges pending friend requests and trip invites into one
// actionable notification feed.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/groupify/backend/internal/models"
)

// Kind identifies the source collection of a notification.
type Kind string

const (
	KindFriendRequest Kind = "friend_request"
	KindTripInvite    Kind = "trip_invite"
)

// ActionKind identifies what an action does.
type ActionKind string

const (
	ActionAccept  ActionKind = "accept"
	ActionDecline ActionKind = "decline"
)

// ErrNoResponder is returned by actions built without a Responder.
var ErrNoResponder = errors.New("notification responder unavailable")

// Responder carries out an action on the record behind a notification.
type Responder interface {
	Respond(ctx context.Context, kind Kind, sourceID string, action ActionKind) error
}

// Action is one button on a notification. Do is bound to the source record.
type Action struct {
	Label string                          `json:"label"`
	Kind  ActionKind                      `json:"kind"`
	Do    func(ctx context.Context) error `json:"-"`
}

// Item is a rendered notification. It is never persisted.
type Item struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	SourceID  string    `json:"sourceId"`
	Message   string    `json:"message"`
	Avatar    string    `json:"avatar,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Actions   []Action  `json:"actions"`
}

// Action returns the item's action of the given kind.
func (i Item) Action(kind ActionKind) (Action, bool) {
	for _, a := range i.Actions {
		if a.Kind == kind {
			return a, true
		}
	}
	return Action{}, false
}

// ItemID is the feed id of the notification for a source record.
func ItemID(kind Kind, sourceID string) string {
	return fmt.Sprintf("%s:%s", kind, sourceID)
}

// BuildFeed lists friend requests followed by trip invites, each in the order
// given. It performs no I/O.
func BuildFeed(requests []models.PendingRequest, invites []models.TripInvite, r Responder) []Item {
	items := make([]Item, 0, len(requests)+len(invites))

	for _, req := range requests {
		sender := req.SenderName
		if sender == "" {
			sender = req.From
		}
		items = append(items, Item{
			ID:        ItemID(KindFriendRequest, req.ID),
			Kind:      KindFriendRequest,
			SourceID:  req.ID,
			Message:   fmt.Sprintf("%s sent you a friend request", sender),
			Avatar:    req.SenderPhoto,
			Timestamp: req.CreatedAt,
			Actions:   actions(r, KindFriendRequest, req.ID),
		})
	}

	for _, inv := range invites {
		inviter := inv.InviterName
		if inviter == "" {
			inviter = "Someone"
		}
		trip := inv.TripName
		if trip == "" {
			trip = "a trip"
		}
		items = append(items, Item{
			ID:        ItemID(KindTripInvite, inv.ID),
			Kind:      KindTripInvite,
			SourceID:  inv.ID,
			Message:   fmt.Sprintf("%s invited you to %s", inviter, trip),
			Avatar:    inv.InviterPhoto,
			Timestamp: inv.CreatedAt,
			Actions:   actions(r, KindTripInvite, inv.ID),
		})
	}

	return items
}

func actions(r Responder, kind Kind, sourceID string) []Action {
	bind := func(action ActionKind) func(context.Context) error {
		return func(ctx context.Context) error {
			if r == nil {
				return ErrNoResponder
			}
			return r.Respond(ctx, kind, sourceID, action)
		}
	}
	return []Action{
		{Label: "Accept", Kind: ActionAccept, Do: bind(ActionAccept)},
		{Label: "Decline", Kind: ActionDecline, Do: bind(ActionDecline)},
	}
}
