package handlers

import (
	"net/http"
	"strings"

	"github.com/groupify/backend/internal/logging"
	"github.com/groupify/backend/internal/notify"
)

// NotificationHandler serves the notification feed and its actions.
type NotificationHandler struct {
	Sessions SessionProvider
	Limiter  RateLimiter
}

type feedResponse struct {
	Items []notify.Item `json:"items"`
}

// List implements GET /api/v1/notifications.
func (h NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
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
	view, err := loader.View()
	if err != nil {
		respondSessionError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, feedResponse{Items: view.Feed})
}

// Act implements POST /api/v1/notifications/{id}/{action}. The response
// carries the feed after the action has been applied.
func (h NotificationHandler) Act(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !allowRequest(h.Limiter, r, "notifications") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many notification actions")
		return
	}

	itemID := strings.TrimSpace(r.PathValue("id"))
	action := notify.ActionKind(strings.ToLower(strings.TrimSpace(r.PathValue("action"))))
	if itemID == "" || action == "" {
		respondError(ctx, w, http.StatusBadRequest, "notification id and action are required")
		return
	}

	loader, err := h.Sessions.Get(ctx, userID)
	if err != nil {
		respondSessionError(ctx, w, err)
		return
	}
	if err := loader.Act(ctx, itemID, action); err != nil {
		respondSessionError(ctx, w, err)
		return
	}
	logging.FromContext(ctx).Info("notification handled", "item", itemID, "action", string(action))

	view, err := loader.View()
	if err != nil {
		respondSessionError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, feedResponse{Items: view.Feed})
}
