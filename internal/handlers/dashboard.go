package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/groupify/backend/internal/logging"
	"github.com/groupify/backend/internal/session"
)

// streamKeepAlive is how often an idle event stream receives a comment line.
var streamKeepAlive = 25 * time.Second

// DashboardHandler serves the combined session view.
type DashboardHandler struct {
	Sessions SessionProvider
}

// Handle implements GET and DELETE /api/v1/dashboard.
func (h DashboardHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodDelete:
		h.stop(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h DashboardHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	loader, err := h.Sessions.Get(ctx, userID)
	if err != nil {
		respondSessionError(ctx, w, err)
		return
	}
	view, err := loader.View()
	if err != nil {
		respondSessionError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, view)
}

func (h DashboardHandler) stop(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if h.Sessions.Stop(userID) {
		logging.FromContext(r.Context()).Info("dashboard session stopped")
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream implements GET /api/v1/dashboard/stream as server-sent events. Each
// change to the session view is delivered as a "view" event.
func (h DashboardHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	loader, err := h.Sessions.Get(ctx, userID)
	if err != nil {
		respondSessionError(ctx, w, err)
		return
	}

	changes, cancel := loader.Changes()
	defer cancel()

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	logger := logging.FromContext(ctx)
	if err := writeView(w, rc, loader); err != nil {
		logger.Warn("dashboard stream closed", "error", err)
		return
	}

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case _, open := <-changes:
			if !open {
				_, _ = fmt.Fprint(w, "event: end\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			if err := writeView(w, rc, loader); err != nil {
				logger.Warn("dashboard stream closed", "error", err)
				return
			}
		}
	}
}

func writeView(w http.ResponseWriter, rc *http.ResponseController, loader *session.Loader) error {
	view, err := loader.View()
	if err != nil {
		return err
	}
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: view\ndata: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
