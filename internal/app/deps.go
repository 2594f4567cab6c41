package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/groupify/backend/internal/config"
	"github.com/groupify/backend/internal/handlers"
	"github.com/groupify/backend/internal/membership"
	"github.com/groupify/backend/internal/middleware"
	"github.com/groupify/backend/internal/profiles"
	"github.com/groupify/backend/internal/realtime"
	"github.com/groupify/backend/internal/repositories"
	"github.com/groupify/backend/internal/session"
	"github.com/groupify/backend/internal/storage"
)

// profileCache is a profile provider whose entries can be dropped on write.
type profileCache interface {
	profiles.Provider
	storage.ProfileInvalidator
}

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup stops running sessions and drains the repair
// queue; the backend itself is closed by the caller.
func buildDependencies(ctx context.Context, b *backend, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := b.Store

	users := repositories.NewUserRepository(store)
	trips := repositories.NewTripRepository(store)
	friends := repositories.NewFriendRepository(store)
	invites := repositories.NewInviteRepository(store)

	base := profiles.StoreProvider{Users: users}
	var cache profileCache
	if b.Redis != nil {
		cache = profiles.NewRedisProvider(base, b.Redis, cfg.ProfileCacheTTL, logger)
	} else {
		cache = profiles.NewCachingProvider(base, cfg.ProfileCacheTTL)
	}

	queue := membership.NewRepairQueue(users, membership.RepairQueueConfig{
		QueueSize: cfg.RepairQueueSize,
		Workers:   cfg.RepairWorkers,
	}, logger)
	resolver := membership.NewResolver(users, trips, queue, logger)

	sessionDeps := session.Dependencies{
		Profiles:           cache,
		Trips:              resolver,
		Roster:             realtime.NewRosterTracker(store, cache, logger),
		Pending:            realtime.NewPendingTracker(store, cache, logger),
		Requests:           friends,
		Invites:            invites,
		Logger:             logger,
		InvitePollInterval: cfg.InvitePollInterval,
	}
	registry := session.NewRegistry(func() *session.Loader {
		return session.NewLoader(sessionDeps)
	}, logger)

	deps := handlers.Dependencies{
		Sessions: registry,
		Trips:    resolver,
		ActionLimiter: middleware.NewKeyedRateLimiter(middleware.RateLimitConfig{
			Requests: cfg.ActionRateLimit,
			Window:   cfg.ActionRateWindow,
			Burst:    cfg.ActionRateBurst,
		}),
		DocStore: b.Kind,
	}

	cleanup := func(ctx context.Context) error {
		registry.Close()
		if err := queue.Shutdown(ctx); err != nil {
			return fmt.Errorf("drain repair queue: %w", err)
		}
		return nil
	}

	if cfg.ObjectStore.Enabled() {
		blobs, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, nil, errors.Join(fmt.Errorf("configure object storage: %w", err), cleanup(ctx))
		}
		deps.Photos = storage.PhotoService{Blobs: blobs, Users: users, Cache: cache, Logger: logger}
	} else {
		logger.Info("object storage not configured, profile photo uploads disabled")
	}

	return deps, cleanup, nil
}
