package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/errtrack/internal/api/middleware"
	"github.com/kiranshivaraju/errtrack/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	ReportHandler   http.HandlerFunc
	IncidentHandler http.HandlerFunc
	ListErrors      http.HandlerFunc
	GetError        http.HandlerFunc
	UpdateError     http.HandlerFunc
	DeleteError     http.HandlerFunc

	ListComments http.HandlerFunc
	AddComment   http.HandlerFunc

	DashboardStats http.HandlerFunc
	RecentErrors   http.HandlerFunc

	ListNotifications http.HandlerFunc
	UnreadCount       http.HandlerFunc
	MarkRead          http.HandlerFunc
	MarkAllRead       http.HandlerFunc

	Help http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Metrics)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// SDK ingestion
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireAPIKey)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/errors/report", orNotImplemented(deps.ReportHandler))
	})

	// Dashboard users
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireUser)

		r.Post("/api/v1/errors", orNotImplemented(deps.IncidentHandler))
		r.Get("/api/v1/errors", orNotImplemented(deps.ListErrors))
		r.Get("/api/v1/errors/{id}", orNotImplemented(deps.GetError))
		r.Patch("/api/v1/errors/{id}", orNotImplemented(deps.UpdateError))
		r.Get("/api/v1/errors/{id}/comments", orNotImplemented(deps.ListComments))
		r.Post("/api/v1/errors/{id}/comments", orNotImplemented(deps.AddComment))

		r.Get("/api/v1/dashboard/stats", orNotImplemented(deps.DashboardStats))
		r.Get("/api/v1/dashboard/recent-errors", orNotImplemented(deps.RecentErrors))

		r.Get("/api/v1/notifications", orNotImplemented(deps.ListNotifications))
		r.Get("/api/v1/notifications/unread-count", orNotImplemented(deps.UnreadCount))
		r.Patch("/api/v1/notifications/read-all", orNotImplemented(deps.MarkAllRead))
		r.Patch("/api/v1/notifications/{id}/read", orNotImplemented(deps.MarkRead))

		r.Post("/api/v1/chat/help", orNotImplemented(deps.Help))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireAdmin)
			r.Delete("/api/v1/errors/{id}", orNotImplemented(deps.DeleteError))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
