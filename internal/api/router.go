// Package api exposes the habit-quest services over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"habit-quest/internal/config"
	"habit-quest/internal/metrics"
	"habit-quest/internal/service"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the services the router dispatches to.
type Deps struct {
	Accounts    *service.AccountService
	Missions    *service.MissionService
	Clans       *service.ClanService
	Weekly      *service.WeeklyEvents
	Track       *service.EventTrack
	Maintenance *service.Maintenance
	Health      HealthChecker

	MaintenanceSecret string
	RateLimit         config.RateLimitConfig
}

// Handler holds the HTTP handlers.
type Handler struct {
	deps Deps
}

// NewRouter builds the route table with its middleware chain.
func NewRouter(deps Deps) http.Handler {
	h := &Handler{deps: deps}

	r := mux.NewRouter()
	r.Use(requestLogger, recoverer, instrument)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	internal := r.PathPrefix("/internal").Subrouter()
	internal.Use(requireSecret(deps.MaintenanceSecret))
	internal.HandleFunc("/maintenance/run", h.runMaintenance).Methods(http.MethodPost)
	internal.HandleFunc("/maintenance/runs", h.maintenanceRuns).Methods(http.MethodGet)

	limiter := NewRateLimiter(deps.RateLimit.RPS, deps.RateLimit.Burst)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(requireUser, limiter.Handler)

	api.HandleFunc("/users", h.ensureUser).Methods(http.MethodPost)
	api.HandleFunc("/users/me", h.me).Methods(http.MethodGet)
	api.HandleFunc("/users/top", h.topUsers).Methods(http.MethodGet)

	api.HandleFunc("/missions", h.createMission).Methods(http.MethodPost)
	api.HandleFunc("/missions", h.listMissions).Methods(http.MethodGet)
	api.HandleFunc("/missions/{id}/complete", h.completeMission).Methods(http.MethodPost)
	api.HandleFunc("/missions/{id}/progress", h.progressMission).Methods(http.MethodPost)
	api.HandleFunc("/missions/{id}", h.deleteMission).Methods(http.MethodDelete)

	api.HandleFunc("/logs/{date}", h.dailyLog).Methods(http.MethodGet)
	api.HandleFunc("/workouts", h.logWorkout).Methods(http.MethodPost)
	api.HandleFunc("/calories", h.logCalories).Methods(http.MethodPost)

	api.HandleFunc("/clans", h.searchClans).Methods(http.MethodGet)
	api.HandleFunc("/clans", h.createClan).Methods(http.MethodPost)
	api.HandleFunc("/clans/mine", h.myClan).Methods(http.MethodGet)
	api.HandleFunc("/clans/leave", h.leaveClan).Methods(http.MethodPost)
	api.HandleFunc("/clans/event/claim", h.claimClanEvent).Methods(http.MethodPost)
	api.HandleFunc("/clans/members/{userID}/kick", h.kickMember).Methods(http.MethodPost)
	api.HandleFunc("/clans/members/{userID}/rank", h.setRank).Methods(http.MethodPost)
	api.HandleFunc("/clans/{id}", h.getClan).Methods(http.MethodGet)
	api.HandleFunc("/clans/{id}/join", h.joinClan).Methods(http.MethodPost)

	api.HandleFunc("/events/progress", h.eventProgress).Methods(http.MethodGet)
	api.HandleFunc("/events/claim", h.claimMilestone).Methods(http.MethodPost)

	return r
}

// NewServer wraps handler in an http.Server with the configured timeouts.
func NewServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Health.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
