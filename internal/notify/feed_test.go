package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/groupify/backend/internal/models"
)

type call struct {
	kind     Kind
	sourceID string
	action   ActionKind
}

type recordingResponder struct {
	calls []call
}

func (r *recordingResponder) Respond(_ context.Context, kind Kind, sourceID string, action ActionKind) error {
	r.calls = append(r.calls, call{kind, sourceID, action})
	return nil
}

func TestBuildFeedEmpty(t *testing.T) {
	items := BuildFeed(nil, nil, nil)
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil feed got %#v", items)
	}
}

func TestBuildFeedOrdersRequestsBeforeInvites(t *testing.T) {
	later := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	requests := []models.PendingRequest{
		{FriendRequest: models.FriendRequest{ID: "r1", From: "bob", CreatedAt: later}, SenderName: "Bob", SenderPhoto: "https://cdn/bob.png"},
		{FriendRequest: models.FriendRequest{ID: "r2", From: "carol", CreatedAt: later}},
	}
	invites := []models.TripInvite{{ID: "i1", TripName: "Lisbon", InviterName: "Dan", CreatedAt: earlier}}

	items := BuildFeed(requests, invites, nil)

	if len(items) != len(requests)+len(invites) {
		t.Fatalf("expected %d items got %d", len(requests)+len(invites), len(items))
	}
	wantKinds := []Kind{KindFriendRequest, KindFriendRequest, KindTripInvite}
	for i, item := range items {
		if item.Kind != wantKinds[i] {
			t.Fatalf("item %d: expected %s got %s", i, wantKinds[i], item.Kind)
		}
	}

	if items[0].Message != "Bob sent you a friend request" || items[0].Avatar != "https://cdn/bob.png" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].Message != "carol sent you a friend request" {
		t.Fatalf("expected sender id fallback got %q", items[1].Message)
	}
	if items[2].Message != "Dan invited you to Lisbon" || items[2].ID != "trip_invite:i1" {
		t.Fatalf("unexpected invite item %+v", items[2])
	}
}

func TestBuildFeedActionsBindSourceIDs(t *testing.T) {
	responder := &recordingResponder{}
	items := BuildFeed(
		[]models.PendingRequest{{FriendRequest: models.FriendRequest{ID: "r1", From: "bob"}}},
		[]models.TripInvite{{ID: "i1"}},
		responder,
	)

	accept, ok := items[1].Action(ActionAccept)
	if !ok {
		t.Fatal("expected accept action")
	}
	decline, _ := items[0].Action(ActionDecline)

	if err := accept.Do(context.Background()); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := decline.Do(context.Background()); err != nil {
		t.Fatalf("decline: %v", err)
	}

	want := []call{
		{KindTripInvite, "i1", ActionAccept},
		{KindFriendRequest, "r1", ActionDecline},
	}
	if len(responder.calls) != len(want) {
		t.Fatalf("expected %d calls got %+v", len(want), responder.calls)
	}
	for i := range want {
		if responder.calls[i] != want[i] {
			t.Fatalf("call %d: expected %+v got %+v", i, want[i], responder.calls[i])
		}
	}

	if _, ok := items[0].Action(ActionKind("snooze")); ok {
		t.Fatal("expected unknown action to be missing")
	}
}

func TestBuildFeedWithoutResponder(t *testing.T) {
	items := BuildFeed(nil, []models.TripInvite{{ID: "i1"}}, nil)
	accept, _ := items[0].Action(ActionAccept)
	if err := accept.Do(context.Background()); !errors.Is(err, ErrNoResponder) {
		t.Fatalf("expected no responder error got %v", err)
	}
	if items[0].Message != "Someone invited you to a trip" {
		t.Fatalf("unexpected fallback message %q", items[0].Message)
	}
}
