package session

import (
	"errors"
	"fmt"
)

// BootstrapMessage is the only bootstrap failure text shown to users.
const BootstrapMessage = "failed to load dashboard data"

var (
	// ErrNotStarted is returned by operations on a loader that has not finished Start.
	ErrNotStarted = errors.New("session not started")
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("session stopped")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrUnknownItem indicates the notification is not in the feed.
	ErrUnknownItem = errors.New("unknown notification")
	// ErrUnknownAction indicates the notification has no such action.
	ErrUnknownAction = errors.New("unknown notification action")
)

// Bootstrap sources.
const (
	SourceProfile = "profile"
	SourceRoster  = "friends"
	SourcePending = "friendRequests"
	SourceInvites = "tripInvites"
)

// BootstrapError reports which initial read failed. Callers show users
// BootstrapMessage only; Source is for logs.
type BootstrapError struct {
	Source string
	Err    error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap %s: %v", e.Source, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}
