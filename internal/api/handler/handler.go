// Package handler implements the HTTP endpoints of the errtrack API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/internal/api/response"
	"github.com/kiranshivaraju/errtrack/internal/assistant"
	"github.com/kiranshivaraju/errtrack/internal/ingest"
	"github.com/kiranshivaraju/errtrack/internal/store"
	"github.com/kiranshivaraju/errtrack/internal/triage"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

// maxBodyBytes bounds every request body. Stack traces are the largest field.
const maxBodyBytes = 1 << 20

// Reporter records SDK reports and manual incidents.
type Reporter interface {
	Report(ctx context.Context, projectID uuid.UUID, in ingest.ReportInput) (*models.ErrorGroup, error)
	ReportIncident(ctx context.Context, in ingest.IncidentInput) (*models.ErrorGroup, error)
}

// Triager serves error group reads, updates and the dashboard.
type Triager interface {
	List(ctx context.Context, params triage.ListParams, requester *models.User) (*triage.Page, error)
	Get(ctx context.Context, id uuid.UUID, requester *models.User) (*models.ErrorGroupDetail, error)
	Visible(ctx context.Context, id uuid.UUID, requester *models.User) (*models.ErrorGroup, error)
	CheckProject(ctx context.Context, id uuid.UUID, requester *models.User) error
	Update(ctx context.Context, id uuid.UUID, in triage.UpdateInput, actor *models.User) (*models.ErrorGroup, error)
	Delete(ctx context.Context, id uuid.UUID, actor *models.User) error
	Dashboard(ctx context.Context, ownerID uuid.UUID) (*triage.Dashboard, error)
	RecentErrors(ctx context.Context, ownerID uuid.UUID) ([]*models.ErrorGroup, error)
}

// Discussion stores and lists group comments.
type Discussion interface {
	Add(ctx context.Context, groupID, authorID uuid.UUID, content string, isInternal bool) (*models.ErrorComment, error)
	List(ctx context.Context, groupID uuid.UUID, role models.Role) ([]*models.ErrorComment, error)
}

// Inbox serves a user's notifications.
type Inbox interface {
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

// Assistant answers in-app help questions.
type Assistant interface {
	Help(ctx context.Context, user *models.User, message string, hc models.HelpContext) (*assistant.Reply, error)
}

// writeServiceError maps service and store errors onto API error envelopes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, models.ErrForbidden):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", nil)
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large", nil)
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

// pathID parses the {name} URL parameter as a UUID, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be an integer", nil)
		return 0, false
	}
	return n, true
}

// optionalUUID tells an absent JSON field apart from an explicit null.
type optionalUUID struct {
	Set   bool
	Value *uuid.UUID
}

func (o *optionalUUID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	o.Value = &id
	return nil
}
