package handler

import (
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/errtrack/internal/api/middleware"
	"github.com/kiranshivaraju/errtrack/internal/api/response"
	"github.com/kiranshivaraju/errtrack/internal/triage"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

// NewListErrorsHandler returns an http.HandlerFunc for GET /api/v1/errors.
func NewListErrorsHandler(svc Triager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		q := r.URL.Query()
		params := triage.ListParams{
			Severity:  q.Get("severity"),
			Status:    q.Get("status"),
			Search:    q.Get("search"),
			DateRange: q.Get("date_range"),
		}
		if v := q.Get("project_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "project_id must be a valid UUID", nil)
				return
			}
			params.ProjectID = id
		}
		if params.Page, ok = queryInt(w, r, "page"); !ok {
			return
		}
		if params.Limit, ok = queryInt(w, r, "limit"); !ok {
			return
		}

		page, err := svc.List(r.Context(), params, user)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Collection(w, page.Items, response.PaginationMeta{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Total,
			TotalPages: page.TotalPages,
			HasNext:    page.Page < page.TotalPages,
		})
	}
}

// NewGetErrorHandler returns an http.HandlerFunc for GET /api/v1/errors/{id}.
func NewGetErrorHandler(svc Triager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		detail, err := svc.Get(r.Context(), id, user)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, detail)
	}
}

type updateRequest struct {
	Status       *string      `json:"status"`
	AssignedToID optionalUUID `json:"assigned_to_id"`
}

// NewUpdateErrorHandler returns an http.HandlerFunc for PATCH /api/v1/errors/{id}.
// Omitted fields are left alone; "assigned_to_id": null unassigns.
func NewUpdateErrorHandler(svc Triager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		var req updateRequest
		if !decodeBody(w, r, &req) {
			return
		}

		in := triage.UpdateInput{
			SetAssignee: req.AssignedToID.Set,
			AssigneeID:  req.AssignedToID.Value,
		}
		if req.Status != nil {
			st, err := models.ParseStatus(*req.Status)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			in.Status = &st
		}

		group, err := svc.Update(r.Context(), id, in, user)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, group)
	}
}

// NewDeleteErrorHandler returns an http.HandlerFunc for DELETE /api/v1/errors/{id}.
func NewDeleteErrorHandler(svc Triager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetUser(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id, user); err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
