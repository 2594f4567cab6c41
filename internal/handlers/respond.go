package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/groupify/backend/internal/logging"
	"github.com/groupify/backend/internal/repositories"
	"github.com/groupify/backend/internal/session"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if !writeJSON(ctx, w, status, payload) {
		return
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(ctx).Error("request failed", "status", status, "response", payload)
	} else if status >= http.StatusBadRequest {
		logging.FromContext(ctx).Warn("request rejected", "status", status, "response", payload)
	}
}

// writeJSON reports whether a payload was encoded.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) bool {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return false
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response", "error", err)
		return false
	}
	return true
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

// requireUser returns the caller's id or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := logging.UserIDFromContext(r.Context())
	if userID == "" {
		respondError(r.Context(), w, http.StatusUnauthorized, "missing user identity")
		return "", false
	}
	return userID, true
}

// respondSessionError maps session and repository failures onto HTTP statuses.
// Bootstrap failures only expose the generic dashboard message and are not
// logged here; the loader logs them with the failing source.
func respondSessionError(ctx context.Context, w http.ResponseWriter, err error) {
	var bootErr *session.BootstrapError
	switch {
	case errors.As(err, &bootErr):
		writeJSON(ctx, w, http.StatusBadGateway, map[string]string{"error": session.BootstrapMessage})
	case errors.Is(err, session.ErrUnknownItem), errors.Is(err, repositories.ErrNotFound):
		respondError(ctx, w, http.StatusNotFound, "notification not found")
	case errors.Is(err, session.ErrUnknownAction):
		respondError(ctx, w, http.StatusBadRequest, "unsupported action")
	case errors.Is(err, repositories.ErrForbidden):
		respondError(ctx, w, http.StatusForbidden, "not allowed to respond to this notification")
	case errors.Is(err, session.ErrStopped), errors.Is(err, session.ErrRegistryClosed):
		respondError(ctx, w, http.StatusServiceUnavailable, "session is no longer running")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(ctx, w, http.StatusGatewayTimeout, "request timed out")
	default:
		logging.FromContext(ctx).Error("session request failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
	}
}
