// Package session owns the per-user dashboard state: it bootstraps the
// profile, roster, pending requests, invites and trips, keeps them current
// through the realtime trackers and applies notification actions.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/groupify/backend/internal/logging"
	"github.com/groupify/backend/internal/models"
	"github.com/groupify/backend/internal/notify"
	"github.com/groupify/backend/internal/realtime"
	"github.com/groupify/backend/internal/repositories"
)

// ProfileSource loads the session user's own profile.
type ProfileSource interface {
	Lookup(ctx context.Context, userID string) (models.User, error)
}

// TripResolver resolves the trips a user belongs to.
type TripResolver interface {
	ResolveTrips(ctx context.Context, userID string) ([]models.Trip, bool)
}

// RosterSource loads and follows the friend roster.
type RosterSource interface {
	Load(ctx context.Context, userID string) ([]models.Friend, error)
	Subscribe(ctx context.Context, userID string, onChange func([]models.Friend)) *realtime.Subscription
}

// PendingSource loads and follows incoming friend requests.
type PendingSource interface {
	Load(ctx context.Context, userID string) ([]models.PendingRequest, error)
	Subscribe(ctx context.Context, userID string, onChange func([]models.PendingRequest)) *realtime.Subscription
}

// RequestResponder answers friend requests.
type RequestResponder interface {
	Accept(ctx context.Context, userID, requestID string) error
	Decline(ctx context.Context, userID, requestID string) error
}

// InviteStore lists and answers trip invites.
type InviteStore interface {
	ListPending(ctx context.Context, userID string) ([]models.TripInvite, error)
	// Accept merges knownTrips into the user's trip list with the new trip.
	Accept(ctx context.Context, userID, inviteID string, knownTrips []string) error
	Decline(ctx context.Context, userID, inviteID string) error
}

// Dependencies are the collaborators of a Loader.
type Dependencies struct {
	Profiles ProfileSource
	Trips    TripResolver
	Roster   RosterSource
	Pending  PendingSource
	Requests RequestResponder
	Invites  InviteStore
	Logger   *slog.Logger

	// InvitePollInterval re-reads the invite list periodically; zero disables polling.
	InvitePollInterval time.Duration
}

// View is a point-in-time copy of the session state.
type View struct {
	UserID  string                  `json:"userId"`
	Profile models.User             `json:"profile"`
	Trips   []models.Trip           `json:"trips"`
	Friends []models.Friend         `json:"friends"`
	Pending []models.PendingRequest `json:"pending"`
	Invites []models.TripInvite     `json:"invites"`
	Feed    []notify.Item           `json:"feed"`
	Version uint64                  `json:"version"`
}

// Loader is one user's dashboard session.
type Loader struct {
	deps   Dependencies
	logger *slog.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	view     View
	handled  map[string]struct{}
	roster   *realtime.Subscription
	pending  *realtime.Subscription
	cancel   context.CancelFunc
	watchers map[int]chan struct{}
	nextID   int

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLoader constructs an idle loader.
func NewLoader(deps Dependencies) *Loader {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		deps:     deps,
		logger:   logger,
		handled:  make(map[string]struct{}),
		watchers: make(map[int]chan struct{}),
	}
}

// Start runs the bootstrap reads concurrently, then attaches the realtime
// trackers. Any failed read aborts Start with a *BootstrapError. The session
// outlives ctx; only Stop ends it.
func (l *Loader) Start(ctx context.Context, userID string) error {
	l.mu.Lock()
	switch {
	case l.stopped:
		l.mu.Unlock()
		return ErrStopped
	case l.started:
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	l.mu.Unlock()

	ctx, span := logging.StartSpan(ctx, "session.bootstrap")
	defer span.End()
	logger := l.logger.With("userId", userID)

	var (
		profile models.User
		friends []models.Friend
		pending []models.PendingRequest
		invites []models.TripInvite
		trips   []models.Trip
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = l.deps.Profiles.Lookup(gctx, userID)
		if errors.Is(err, repositories.ErrNotFound) {
			profile, err = models.User{ID: userID}, nil
		}
		return wrapBootstrap(SourceProfile, err)
	})
	g.Go(func() error {
		var err error
		friends, err = l.deps.Roster.Load(gctx, userID)
		return wrapBootstrap(SourceRoster, err)
	})
	g.Go(func() error {
		var err error
		pending, err = l.deps.Pending.Load(gctx, userID)
		return wrapBootstrap(SourcePending, err)
	})
	g.Go(func() error {
		var err error
		invites, err = l.deps.Invites.ListPending(gctx, userID)
		return wrapBootstrap(SourceInvites, err)
	})
	g.Go(func() error {
		trips, _ = l.deps.Trips.ResolveTrips(gctx, userID)
		return nil
	})
	if err := g.Wait(); err != nil {
		var bootErr *BootstrapError
		if errors.As(err, &bootErr) {
			logger.Error("dashboard bootstrap failed", "source", bootErr.Source, "error", bootErr.Err)
		}
		span.Fail(err)
		l.mu.Lock()
		l.started = false
		l.mu.Unlock()
		return err
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		cancel()
		return ErrStopped
	}
	l.cancel = cancel
	l.view = View{
		UserID:  userID,
		Profile: profile,
		Trips:   nonNil(trips),
		Friends: nonNil(friends),
		Pending: nonNil(pending),
		Invites: nonNil(invites),
	}
	l.rebuildLocked()
	l.roster = l.deps.Roster.Subscribe(sessionCtx, userID, l.applyRoster)
	l.pending = l.deps.Pending.Subscribe(sessionCtx, userID, l.applyPending)
	if l.deps.InvitePollInterval > 0 {
		l.wg.Add(1)
		go l.pollInvites(sessionCtx, l.deps.InvitePollInterval)
	}
	l.mu.Unlock()

	l.broadcast()
	logger.Info("dashboard session started", "trips", len(trips), "friends", len(friends), "pending", len(pending), "invites", len(invites))
	return nil
}

// Stop detaches both trackers and ends the session. It is idempotent and
// safe to call before or during Start.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		roster, pending, cancel := l.roster, l.pending, l.cancel
		watchers := l.watchers
		l.watchers = make(map[int]chan struct{})
		l.mu.Unlock()

		roster.Unsubscribe()
		pending.Unsubscribe()
		if cancel != nil {
			cancel()
		}
		l.wg.Wait()

		for _, ch := range watchers {
			close(ch)
		}
	})
}

// View returns a copy of the current state.
func (l *Loader) View() (View, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readyLocked(); err != nil {
		return View{}, err
	}
	return l.view.clone(), nil
}

// Changes returns a channel that receives a signal after every state change.
// Signals are coalesced. The channel is closed when the session stops or
// cancel is called.
func (l *Loader) Changes() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := l.nextID
	l.nextID++
	l.watchers[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			if w, ok := l.watchers[id]; ok {
				delete(l.watchers, id)
				close(w)
			}
			l.mu.Unlock()
		})
	}
}

// Act invokes an action of a feed item by id. Acting again on an item that
// was already handled in this session is a no-op.
func (l *Loader) Act(ctx context.Context, itemID string, action notify.ActionKind) error {
	l.mu.Lock()
	if err := l.readyLocked(); err != nil {
		l.mu.Unlock()
		return err
	}
	if _, done := l.handled[itemID]; done {
		l.mu.Unlock()
		return nil
	}
	idx := slices.IndexFunc(l.view.Feed, func(item notify.Item) bool { return item.ID == itemID })
	if idx < 0 {
		l.mu.Unlock()
		return ErrUnknownItem
	}
	do, ok := l.view.Feed[idx].Action(action)
	l.mu.Unlock()

	if !ok {
		return ErrUnknownAction
	}
	return do.Do(ctx)
}

// Respond implements notify.Responder. The item is pruned from local state
// before the store mutation runs and restored if the mutation fails.
func (l *Loader) Respond(ctx context.Context, kind notify.Kind, sourceID string, action notify.ActionKind) error {
	if action != notify.ActionAccept && action != notify.ActionDecline {
		return ErrUnknownAction
	}
	itemID := notify.ItemID(kind, sourceID)

	l.mu.Lock()
	if err := l.readyLocked(); err != nil {
		l.mu.Unlock()
		return err
	}
	if _, done := l.handled[itemID]; done {
		l.mu.Unlock()
		return nil
	}
	restore, ok := l.pruneLocked(kind, sourceID)
	if !ok {
		l.mu.Unlock()
		return ErrUnknownItem
	}
	l.handled[itemID] = struct{}{}
	userID := l.view.UserID
	knownTrips := make([]string, len(l.view.Trips))
	for i, trip := range l.view.Trips {
		knownTrips[i] = trip.ID
	}
	l.rebuildLocked()
	l.mu.Unlock()
	l.broadcast()

	err := l.mutate(ctx, userID, kind, sourceID, action, knownTrips)
	if errors.Is(err, repositories.ErrConflict) {
		// Already answered elsewhere; the pruned state is correct.
		err = nil
	}
	if err != nil {
		l.logger.Warn("notification action failed", "userId", userID, "item", itemID, "action", action, "error", err)
		l.mu.Lock()
		delete(l.handled, itemID)
		if !l.stopped {
			restore()
			l.rebuildLocked()
		}
		l.mu.Unlock()
		l.broadcast()
		return err
	}

	if kind == notify.KindTripInvite && action == notify.ActionAccept {
		l.RefreshTrips(ctx)
	}
	return nil
}

func (l *Loader) mutate(ctx context.Context, userID string, kind notify.Kind, sourceID string, action notify.ActionKind, knownTrips []string) error {
	switch kind {
	case notify.KindFriendRequest:
		if action == notify.ActionAccept {
			return l.deps.Requests.Accept(ctx, userID, sourceID)
		}
		return l.deps.Requests.Decline(ctx, userID, sourceID)
	case notify.KindTripInvite:
		if action == notify.ActionAccept {
			return l.deps.Invites.Accept(ctx, userID, sourceID, knownTrips)
		}
		return l.deps.Invites.Decline(ctx, userID, sourceID)
	default:
		return ErrUnknownItem
	}
}

// RefreshTrips re-runs the membership resolver and stores the result.
func (l *Loader) RefreshTrips(ctx context.Context) ([]models.Trip, bool) {
	l.mu.Lock()
	if l.readyLocked() != nil {
		l.mu.Unlock()
		return []models.Trip{}, false
	}
	userID := l.view.UserID
	l.mu.Unlock()

	trips, repaired := l.deps.Trips.ResolveTrips(ctx, userID)
	l.update(func() { l.view.Trips = nonNil(trips) })
	return trips, repaired
}

// RefreshInvites re-reads the pending trip invites.
func (l *Loader) RefreshInvites(ctx context.Context) error {
	l.mu.Lock()
	if err := l.readyLocked(); err != nil {
		l.mu.Unlock()
		return err
	}
	userID := l.view.UserID
	l.mu.Unlock()

	invites, err := l.deps.Invites.ListPending(ctx, userID)
	if err != nil {
		return err
	}
	l.update(func() {
		l.view.Invites = slices.DeleteFunc(nonNil(invites), func(inv models.TripInvite) bool {
			return l.isHandledLocked(notify.KindTripInvite, inv.ID)
		})
	})
	return nil
}

// RefreshProfile re-reads the session user's profile.
func (l *Loader) RefreshProfile(ctx context.Context) error {
	l.mu.Lock()
	if err := l.readyLocked(); err != nil {
		l.mu.Unlock()
		return err
	}
	userID := l.view.UserID
	l.mu.Unlock()

	profile, err := l.deps.Profiles.Lookup(ctx, userID)
	if err != nil {
		return err
	}
	l.update(func() { l.view.Profile = profile })
	return nil
}

func (l *Loader) applyRoster(friends []models.Friend) {
	l.update(func() { l.view.Friends = nonNil(friends) })
}

func (l *Loader) applyPending(pending []models.PendingRequest) {
	l.update(func() {
		l.view.Pending = slices.DeleteFunc(nonNil(pending), func(req models.PendingRequest) bool {
			return l.isHandledLocked(notify.KindFriendRequest, req.ID)
		})
	})
}

func (l *Loader) pollInvites(ctx context.Context, interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.RefreshInvites(ctx); err != nil && ctx.Err() == nil {
				l.logger.Warn("invite poll failed", "userId", l.userID(), "error", err)
			}
		}
	}
}

// update applies fn under the lock unless the session has stopped.
func (l *Loader) update(fn func()) {
	l.mu.Lock()
	if l.stopped || !l.started {
		l.mu.Unlock()
		return
	}
	fn()
	l.rebuildLocked()
	l.mu.Unlock()
	l.broadcast()
}

func (l *Loader) pruneLocked(kind notify.Kind, sourceID string) (func(), bool) {
	switch kind {
	case notify.KindFriendRequest:
		idx := slices.IndexFunc(l.view.Pending, func(r models.PendingRequest) bool { return r.ID == sourceID })
		if idx < 0 {
			return nil, false
		}
		removed := l.view.Pending[idx]
		l.view.Pending = slices.Delete(slices.Clone(l.view.Pending), idx, idx+1)
		return func() {
			if !slices.ContainsFunc(l.view.Pending, func(r models.PendingRequest) bool { return r.ID == sourceID }) {
				l.view.Pending = slices.Insert(l.view.Pending, min(idx, len(l.view.Pending)), removed)
			}
		}, true
	case notify.KindTripInvite:
		idx := slices.IndexFunc(l.view.Invites, func(inv models.TripInvite) bool { return inv.ID == sourceID })
		if idx < 0 {
			return nil, false
		}
		removed := l.view.Invites[idx]
		l.view.Invites = slices.Delete(slices.Clone(l.view.Invites), idx, idx+1)
		return func() {
			if !slices.ContainsFunc(l.view.Invites, func(inv models.TripInvite) bool { return inv.ID == sourceID }) {
				l.view.Invites = slices.Insert(l.view.Invites, min(idx, len(l.view.Invites)), removed)
			}
		}, true
	default:
		return nil, false
	}
}

func (l *Loader) isHandledLocked(kind notify.Kind, sourceID string) bool {
	_, ok := l.handled[notify.ItemID(kind, sourceID)]
	return ok
}

func (l *Loader) rebuildLocked() {
	l.view.Feed = notify.BuildFeed(l.view.Pending, l.view.Invites, l)
	l.view.Version++
}

func (l *Loader) readyLocked() error {
	switch {
	case l.stopped:
		return ErrStopped
	case !l.started || l.view.UserID == "":
		return ErrNotStarted
	}
	return nil
}

func (l *Loader) broadcast() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (l *Loader) userID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.UserID
}

func (v View) clone() View {
	out := v
	out.Trips = slices.Clone(v.Trips)
	out.Friends = slices.Clone(v.Friends)
	out.Pending = slices.Clone(v.Pending)
	out.Invites = slices.Clone(v.Invites)
	out.Feed = slices.Clone(v.Feed)
	return out
}

func wrapBootstrap(source string, err error) error {
	if err == nil {
		return nil
	}
	return &BootstrapError{Source: source, Err: err}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
