package models

import (
	"strings"
	"time"

	"github.com/groupify/backend/internal/docstore"
)

// ValidID returns v as an id when it is a non-blank string.
func ValidID(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// IDList extracts the valid ids from a loosely typed array, dropping
// malformed entries and duplicates while preserving first-seen order.
func IDList(v any) []string {
	var raw []any
	switch t := v.(type) {
	case []any:
		raw = t
	case []string:
		raw = make([]any, len(t))
		for i := range t {
			raw[i] = t[i]
		}
	default:
		return []string{}
	}

	ids := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		id, ok := ValidID(item)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// timeField accepts native timestamps, RFC 3339 strings and epoch milliseconds.
func timeField(data map[string]any, key string) (time.Time, bool) {
	switch t := data[key].(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	case int64:
		return time.UnixMilli(t).UTC(), true
	case int:
		return time.UnixMilli(int64(t)).UTC(), true
	default:
		return time.Time{}, false
	}
}

// UserFromDocument decodes a users document.
func UserFromDocument(doc docstore.Document) User {
	return User{
		ID:          doc.ID,
		DisplayName: stringField(doc.Data, "displayName"),
		Email:       stringField(doc.Data, "email"),
		PhotoURL:    stringField(doc.Data, "photoURL"),
		Friends:     IDList(doc.Data["friends"]),
		Trips:       IDList(doc.Data["trips"]),
	}
}

// TripFromDocument decodes a trips document.
func TripFromDocument(doc docstore.Document) Trip {
	trip := Trip{
		ID:        doc.ID,
		Name:      stringField(doc.Data, "name"),
		Location:  stringField(doc.Data, "location"),
		CreatedBy: stringField(doc.Data, "createdBy"),
		Admins:    IDList(doc.Data["admins"]),
		Members:   IDList(doc.Data["members"]),
	}
	if created, ok := timeField(doc.Data, "createdAt"); ok {
		trip.CreatedAt = &created
	}
	return trip
}

// FriendRequestFromDocument decodes a friendRequests document. ok is false
// when the sender id is malformed.
func FriendRequestFromDocument(doc docstore.Document) (FriendRequest, bool) {
	from, ok := ValidID(doc.Data["from"])
	if !ok || doc.ID == "" {
		return FriendRequest{}, false
	}
	req := FriendRequest{
		ID:     doc.ID,
		From:   from,
		To:     stringField(doc.Data, "to"),
		Status: stringField(doc.Data, "status"),
	}
	req.CreatedAt, _ = timeField(doc.Data, "createdAt")
	return req, true
}

// TripInviteFromDocument decodes a tripInvites document. ok is false when the
// trip id is malformed.
func TripInviteFromDocument(doc docstore.Document) (TripInvite, bool) {
	tripID, ok := ValidID(doc.Data["tripId"])
	if !ok || doc.ID == "" {
		return TripInvite{}, false
	}
	inv := TripInvite{
		ID:           doc.ID,
		TripID:       tripID,
		TripName:     stringField(doc.Data, "tripName"),
		InviterID:    stringField(doc.Data, "inviterId"),
		InviterName:  stringField(doc.Data, "inviterName"),
		InviterPhoto: stringField(doc.Data, "inviterPhoto"),
		InviteeID:    stringField(doc.Data, "inviteeId"),
		Status:       stringField(doc.Data, "status"),
	}
	inv.CreatedAt, _ = timeField(doc.Data, "createdAt")
	return inv, true
}
