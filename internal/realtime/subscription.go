// Package realtime keeps live views of a user's friend roster and incoming
// friend requests on top of document store subscriptions.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/groupify/backend/internal/docstore"
)

// Subscription is the handle returned by a tracker. It is usable as soon as
// Subscribe returns, before the underlying store subscription is attached.
type Subscription struct {
	cancel   context.CancelFunc
	detached atomic.Bool
	done     chan struct{}

	mu       sync.Mutex
	release  docstore.Unsubscribe
	attached bool

	// emitMu is held while onChange runs so Unsubscribe can wait it out.
	emitMu sync.Mutex
}

func newSubscription(cancel context.CancelFunc) *Subscription {
	return &Subscription{cancel: cancel, done: make(chan struct{})}
}

// Unsubscribe detaches the tracker. It is idempotent and safe on a nil handle.
// A detach requested before attachment completes is honored once it does.
// When it returns no onChange call is running and none will start. onChange
// must not call Unsubscribe on its own handle.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	if s.detached.Swap(true) {
		return
	}
	s.cancel()

	s.mu.Lock()
	release := s.release
	s.release = nil
	s.mu.Unlock()

	if release != nil {
		release()
	}

	s.emitMu.Lock()
	s.emitMu.Unlock()
}

// Attached reports whether the store subscription has been established.
func (s *Subscription) Attached() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Done is closed once the tracker has stopped processing snapshots.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// attach records the store handle. It returns false, releasing the handle,
// when Unsubscribe already ran.
func (s *Subscription) attach(release docstore.Unsubscribe) bool {
	s.mu.Lock()
	if s.detached.Load() {
		s.mu.Unlock()
		release()
		return false
	}
	s.release = release
	s.attached = true
	s.mu.Unlock()
	return true
}

// deliver runs emit unless the subscription has been detached. It reports
// whether emit ran.
func (s *Subscription) deliver(emit func()) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.detached.Load() {
		return false
	}
	emit()
	return true
}
