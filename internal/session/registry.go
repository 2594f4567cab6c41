package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("session registry closed")

type registryEntry struct {
	loader *Loader
	ready  chan struct{}
	err    error
}

// Registry keeps one running Loader per user id.
type Registry struct {
	newLoader func() *Loader
	logger    *slog.Logger

	mu      sync.Mutex
	closed  bool
	entries map[string]*registryEntry
}

// NewRegistry constructs a registry that builds loaders with newLoader.
func NewRegistry(newLoader func() *Loader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		newLoader: newLoader,
		logger:    logger,
		entries:   make(map[string]*registryEntry),
	}
}

// Get returns the user's loader, starting it on first access. Concurrent
// callers share a single Start; a failed Start is not cached.
func (r *Registry) Get(ctx context.Context, userID string) (*Loader, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if entry, ok := r.entries[userID]; ok {
		r.mu.Unlock()
		select {
		case <-entry.ready:
			return entry.loader, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	entry := &registryEntry{loader: r.newLoader(), ready: make(chan struct{})}
	r.entries[userID] = entry
	r.mu.Unlock()

	entry.err = entry.loader.Start(ctx, userID)
	if entry.err != nil {
		r.mu.Lock()
		if r.entries[userID] == entry {
			delete(r.entries, userID)
		}
		r.mu.Unlock()
		entry.loader.Stop()
	}
	close(entry.ready)

	if entry.err != nil {
		return nil, entry.err
	}
	return entry.loader, nil
}

// Lookup returns a running loader without starting one.
func (r *Registry) Lookup(userID string) (*Loader, bool) {
	r.mu.Lock()
	entry, ok := r.entries[userID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-entry.ready:
		return entry.loader, entry.err == nil
	default:
		return nil, false
	}
}

// Stop ends and forgets the user's session. It reports whether one existed.
func (r *Registry) Stop(userID string) bool {
	r.mu.Lock()
	entry, ok := r.entries[userID]
	delete(r.entries, userID)
	r.mu.Unlock()

	if ok {
		entry.loader.Stop()
	}
	return ok
}

// Close stops every session and rejects further Gets.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.loader.Stop()
	}
	r.logger.Info("dashboard sessions stopped", "count", len(entries))
}
