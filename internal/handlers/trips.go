package handlers

import (
	"net/http"

	"github.com/groupify/backend/internal/models"
)

// TripHandler exposes trip membership resolution.
type TripHandler struct {
	Trips TripResolver
}

type tripsResponse struct {
	Trips    []models.Trip `json:"trips"`
	Repaired bool          `json:"repaired"`
}

// List implements GET /api/v1/trips.
func (h TripHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	trips, repaired := h.Trips.ResolveTrips(r.Context(), userID)
	if trips == nil {
		trips = []models.Trip{}
	}
	respondJSON(r.Context(), w, http.StatusOK, tripsResponse{Trips: trips, Repaired: repaired})
}
