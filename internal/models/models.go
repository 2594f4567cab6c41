package models

import "time"

// Collections used by the dashboard in the document store.
const (
	CollectionUsers          = "users"
	CollectionTrips          = "trips"
	CollectionFriendRequests = "friendRequests"
	CollectionTripInvites    = "tripInvites"
)

// Request and invite lifecycle states.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
)

// User is an account as stored in the users collection. Friends and Trips
// are denormalized id lists; Trips may be stale.
type User struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	PhotoURL    string   `json:"photoURL"`
	Friends     []string `json:"friends"`
	Trips       []string `json:"trips"`
}

// Trip is a shared trip. Membership is authoritative when the user appears in
// Members or is the creator.
type Trip struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Location  string     `json:"location"`
	CreatedBy string     `json:"createdBy"`
	Admins    []string   `json:"admins"`
	Members   []string   `json:"members"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// HasMember reports whether userID belongs to the trip.
func (t Trip) HasMember(userID string) bool {
	if userID == "" {
		return false
	}
	if t.CreatedBy == userID {
		return true
	}
	for _, id := range t.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// Friend is one roster entry.
type Friend struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL"`
}

// FriendRequest is the invitation workflow between two users. Rows are never
// deleted, only transitioned out of pending.
type FriendRequest struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// PendingRequest is an incoming friend request enriched with the sender's
// profile. Sender fields stay empty when the profile could not be loaded.
type PendingRequest struct {
	FriendRequest
	SenderName  string `json:"senderName,omitempty"`
	SenderEmail string `json:"senderEmail,omitempty"`
	SenderPhoto string `json:"senderPhoto,omitempty"`
}

// TripInvite asks InviteeID to join a trip.
type TripInvite struct {
	ID           string    `json:"id"`
	TripID       string    `json:"tripId"`
	TripName     string    `json:"tripName"`
	InviterID    string    `json:"inviterId"`
	InviterName  string    `json:"inviterName"`
	InviterPhoto string    `json:"inviterPhoto"`
	InviteeID    string    `json:"inviteeId"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}
