package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{DocStore: deps.DocStore}
	dashboard := DashboardHandler{Sessions: deps.Sessions}
	trips := TripHandler{Trips: deps.Trips}
	notifications := NotificationHandler{Sessions: deps.Sessions, Limiter: deps.ActionLimiter}
	profile := ProfileHandler{Photos: deps.Photos, Sessions: deps.Sessions}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/dashboard", dashboard.Handle)
	mux.HandleFunc("/api/v1/dashboard/stream", dashboard.Stream)
	mux.HandleFunc("/api/v1/trips", trips.List)
	mux.HandleFunc("/api/v1/notifications", notifications.List)
	mux.HandleFunc("/api/v1/notifications/{id}/{action}", notifications.Act)
	mux.HandleFunc("/api/v1/profile/photo", profile.UploadPhoto)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Sessions      SessionProvider
	Trips         TripResolver
	Photos        PhotoReplacer
	ActionLimiter RateLimiter
	DocStore      string
}
