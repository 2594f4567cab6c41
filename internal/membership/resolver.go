// Package membership reconciles a user's trip membership between the
// denormalized users.trips list and the authoritative trip queries.
package membership

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/groupify/backend/internal/logging"
	"github.com/groupify/backend/internal/models"
	"github.com/groupify/backend/internal/repositories"
)

const fastPathConcurrency = 4

// UserReader loads user records.
type UserReader interface {
	Get(ctx context.Context, userID string) (models.User, error)
}

// TripReader loads trips by id and by the two membership relations.
type TripReader interface {
	Get(ctx context.Context, tripID string) (models.Trip, error)
	ListCreatedBy(ctx context.Context, userID string) ([]models.Trip, error)
	ListMemberOf(ctx context.Context, userID string) ([]models.Trip, error)
}

// Repairer schedules a background write-back of a user's trip ids.
type Repairer interface {
	Enqueue(userID string, tripIDs []string) error
}

// Resolver resolves the trips a user belongs to. It holds no per-call state,
// so concurrent calls are independent.
type Resolver struct {
	users   UserReader
	trips   TripReader
	repairs Repairer
	logger  *slog.Logger
}

// NewResolver constructs a Resolver. repairs may be nil to disable write-back.
// logger is used when the caller's context carries no logger.
func NewResolver(users UserReader, trips TripReader, repairs Repairer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{users: users, trips: trips, repairs: repairs, logger: logger}
}

// ResolveTrips returns the user's trips without duplicates. repaired reports
// whether a write-back of the denormalized list was scheduled. Failures on the
// authoritative path yield an empty list.
func (r *Resolver) ResolveTrips(ctx context.Context, userID string) ([]models.Trip, bool) {
	ctx = logging.WithLogger(ctx, logging.FromContextOr(ctx, r.logger))
	ctx, span := logging.StartSpan(ctx, "membership.resolve_trips")
	defer span.End()
	logger := logging.FromContext(ctx).With("userId", userID)

	if strings.TrimSpace(userID) == "" {
		return []models.Trip{}, false
	}

	if trips := r.fastPath(ctx, logger, userID); len(trips) > 0 {
		span.SetAttr("path", "fast")
		span.SetAttr("trips", len(trips))
		return trips, false
	}

	span.SetAttr("path", "authoritative")
	trips, err := r.authoritative(ctx, userID)
	if err != nil {
		logger.Warn("authoritative trip queries failed", "error", err)
		span.Fail(err)
		return []models.Trip{}, false
	}
	span.SetAttr("trips", len(trips))
	if len(trips) == 0 {
		return trips, false
	}

	if r.repairs == nil {
		return trips, false
	}
	ids := make([]string, len(trips))
	for i, trip := range trips {
		ids[i] = trip.ID
	}
	if err := r.repairs.Enqueue(userID, ids); err != nil {
		logger.Warn("trip write-back not scheduled", "error", err)
		return trips, false
	}
	span.SetAttr("repaired", true)
	return trips, true
}

func (r *Resolver) fastPath(ctx context.Context, logger *slog.Logger, userID string) []models.Trip {
	user, err := r.users.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("fast path user read failed", "error", err)
		}
		return nil
	}
	if len(user.Trips) == 0 {
		return nil
	}

	found := make([]*models.Trip, len(user.Trips))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fastPathConcurrency)
	for i, id := range user.Trips {
		g.Go(func() error {
			trip, err := r.trips.Get(gctx, id)
			if err != nil {
				if !errors.Is(err, repositories.ErrNotFound) {
					logger.Warn("fast path trip read failed", "tripId", id, "error", err)
				}
				return nil
			}
			found[i] = &trip
			return nil
		})
	}
	_ = g.Wait()

	trips := make([]models.Trip, 0, len(found))
	for _, trip := range found {
		if trip != nil {
			trips = append(trips, *trip)
		}
	}
	return trips
}

func (r *Resolver) authoritative(ctx context.Context, userID string) ([]models.Trip, error) {
	var created, member []models.Trip

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		created, err = r.trips.ListCreatedBy(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		member, err = r.trips.ListMemberOf(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(created)+len(member))
	trips := make([]models.Trip, 0, len(created)+len(member))
	for _, set := range [][]models.Trip{created, member} {
		for _, trip := range set {
			if trip.ID == "" {
				continue
			}
			if _, dup := seen[trip.ID]; dup {
				continue
			}
			seen[trip.ID] = struct{}{}
			trips = append(trips, trip)
		}
	}
	return trips, nil
}
