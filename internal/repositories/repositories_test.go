package repositories

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/groupify/backend/internal/docstore"
	"github.com/groupify/backend/internal/models"
)

func newSeededStore(t *testing.T) *docstore.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	users := NewUserRepository(store)
	for _, u := range []models.User{
		{ID: "alice", DisplayName: "Alice", Email: "alice@example.com"},
		{ID: "bob", Email: "bob@example.com"},
	} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("create user %s: %v", u.ID, err)
		}
	}
	if err := NewTripRepository(store).Create(ctx, models.Trip{ID: "t1", Name: "Lisbon", CreatedBy: "bob"}); err != nil {
		t.Fatalf("create trip: %v", err)
	}
	return store
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	repo := NewUserRepository(store)

	if err := repo.Create(ctx, models.User{ID: "alice"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict got %v", err)
	}
	if _, err := repo.Get(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
	if _, err := repo.Get(ctx, " "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for blank id got %v", err)
	}

	if err := repo.AddTrips(ctx, "alice", []string{"t1", "t2"}); err != nil {
		t.Fatalf("add trips: %v", err)
	}
	if err := repo.AddTrips(ctx, "alice", []string{"t2"}); err != nil {
		t.Fatalf("add trips again: %v", err)
	}
	if err := repo.SetPhotoURL(ctx, "alice", "https://cdn/alice.png"); err != nil {
		t.Fatalf("set photo: %v", err)
	}

	user, err := repo.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(user.Trips, []string{"t1", "t2"}) || user.PhotoURL != "https://cdn/alice.png" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if err := repo.AddTrips(ctx, "nobody", []string{"t1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestTripRepositoryQueries(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	repo := NewTripRepository(store)

	if err := repo.Create(ctx, models.Trip{ID: "t2", CreatedBy: "alice", Members: []string{"bob"}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	created, err := repo.ListCreatedBy(ctx, "alice")
	if err != nil || len(created) != 1 || created[0].ID != "t2" {
		t.Fatalf("unexpected created trips %+v err %v", created, err)
	}
	member, err := repo.ListMemberOf(ctx, "bob")
	if err != nil || len(member) != 1 || member[0].ID != "t2" {
		t.Fatalf("unexpected member trips %+v err %v", member, err)
	}

	trip, err := repo.Get(ctx, "t2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(trip.Admins, []string{"alice"}) || trip.CreatedAt == nil {
		t.Fatalf("expected creator as admin and createdAt set: %+v", trip)
	}
}

func TestFriendRepositoryAcceptAndDecline(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	repo := NewFriendRepository(store)
	users := NewUserRepository(store)

	if err := repo.CreateRequest(ctx, models.FriendRequest{ID: "r1", From: "bob", To: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CreateRequest(ctx, models.FriendRequest{ID: "r2", From: "alice", To: "alice"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected self request to conflict got %v", err)
	}

	pending, err := repo.ListPending(ctx, "alice")
	if err != nil || len(pending) != 1 || pending[0].From != "bob" {
		t.Fatalf("unexpected pending %+v err %v", pending, err)
	}

	if err := repo.Accept(ctx, "bob", "r1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden got %v", err)
	}
	if err := repo.Accept(ctx, "alice", "r1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := repo.Accept(ctx, "alice", "r1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on second accept got %v", err)
	}
	if err := repo.Decline(ctx, "alice", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}

	alice, _ := users.Get(ctx, "alice")
	bob, _ := users.Get(ctx, "bob")
	if !reflect.DeepEqual(alice.Friends, []string{"bob"}) || !reflect.DeepEqual(bob.Friends, []string{"alice"}) {
		t.Fatalf("expected mutual friendship got alice=%v bob=%v", alice.Friends, bob.Friends)
	}

	pending, _ = repo.ListPending(ctx, "alice")
	if len(pending) != 0 {
		t.Fatalf("expected no pending requests got %+v", pending)
	}
}

func TestDecodeFriendRequestsReportsMalformed(t *testing.T) {
	docs := []docstore.Document{
		{ID: "r1", Data: map[string]any{"from": "bob", "to": "alice"}},
		{ID: "r2", Data: map[string]any{"from": ""}},
		{ID: "r3", Data: map[string]any{"from": "carol", "to": "alice"}},
	}

	requests, malformed := DecodeFriendRequests(docs)
	if len(requests) != 2 || requests[0].ID != "r1" || requests[1].ID != "r3" {
		t.Fatalf("unexpected requests %+v", requests)
	}
	if !reflect.DeepEqual(malformed, []string{"r2"}) {
		t.Fatalf("expected r2 to be reported got %v", malformed)
	}
}

func TestFriendRepositoryAcceptRollsBackWhenSenderMissing(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	repo := NewFriendRepository(store)

	if err := repo.CreateRequest(ctx, models.FriendRequest{ID: "r1", From: "ghost", To: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Accept(ctx, "alice", "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}

	req, err := repo.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if req.Status != models.StatusPending {
		t.Fatalf("expected request to stay pending got %q", req.Status)
	}
}

func TestInviteRepositoryAccept(t *testing.T) {
	ctx := context.Background()
	store := newSeededStore(t)
	repo := NewInviteRepository(store)

	invite := models.TripInvite{ID: "i1", TripID: "t1", TripName: "Lisbon", InviterID: "bob", InviteeID: "alice"}
	if err := repo.Create(ctx, invite); err != nil {
		t.Fatalf("create: %v", err)
	}

	pending, err := repo.ListPending(ctx, "alice")
	if err != nil || len(pending) != 1 || pending[0].TripName != "Lisbon" {
		t.Fatalf("unexpected pending %+v err %v", pending, err)
	}

	if err := repo.Accept(ctx, "alice", "i1", []string{"t0", "", "t1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := repo.Decline(ctx, "alice", "i1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict got %v", err)
	}

	trip, _ := NewTripRepository(store).Get(ctx, "t1")
	if !trip.HasMember("alice") {
		t.Fatalf("expected alice to be a member: %+v", trip)
	}
	user, _ := NewUserRepository(store).Get(ctx, "alice")
	if !reflect.DeepEqual(user.Trips, []string{"t0", "t1"}) {
		t.Fatalf("expected known trips ahead of the accepted trip got %v", user.Trips)
	}
}
