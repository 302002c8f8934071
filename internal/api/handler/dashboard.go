package handler

import (
	"net/http"

	mw "github.com/kiranshivaraju/errtrack/internal/api/middleware"
	"github.com/kiranshivaraju/errtrack/internal/api/response"
)

// NewDashboardStatsHandler returns an http.HandlerFunc for GET /api/v1/dashboard/stats.
// Stats cover the projects the caller owns.
func NewDashboardStatsHandler(svc Triager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		dash, err := svc.Dashboard(r.Context(), user.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, dash)
	}
}

// NewRecentErrorsHandler returns an http.HandlerFunc for GET /api/v1/dashboard/recent-errors.
func NewRecentErrorsHandler(svc Triager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		recent, err := svc.RecentErrors(r.Context(), user.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, recent)
	}
}
